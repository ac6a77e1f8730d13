package workload

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opsrelay/opsrelay/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(config.WorkloadConfig{URL: srv.URL, Token: "tok-123"})
}

func TestGetDeployment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/api/v1/namespaces/prod/deployments/web" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok-123" {
			t.Errorf("authorization = %q", auth)
		}
		json.NewEncoder(w).Encode(Deployment{Name: "web", Namespace: "prod", Replicas: 3})
	})

	dep, err := c.GetDeployment(context.Background(), "prod", "web")
	if err != nil {
		t.Fatalf("GetDeployment: %v", err)
	}
	if dep.Name != "web" || dep.Replicas != 3 {
		t.Fatalf("deployment = %+v", dep)
	}
}

func TestGetDeploymentNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "deployment not found"})
	})

	_, err := c.GetDeployment(context.Background(), "prod", "ghost")
	if err == nil {
		t.Fatal("GetDeployment succeeded on 404")
	}
	if !strings.Contains(err.Error(), "deployment not found") {
		t.Fatalf("error = %v, want API message surfaced", err)
	}
}

func TestScaleDeployment(t *testing.T) {
	var body map[string]int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/api/v1/namespaces/prod/deployments/web/scale" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
	})

	if err := c.ScaleDeployment(context.Background(), "prod", "web", 5); err != nil {
		t.Fatalf("ScaleDeployment: %v", err)
	}
	if body["replicas"] != 5 {
		t.Fatalf("payload = %v", body)
	}
}

func TestGetPod(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/namespaces/prod/pods/web-abc" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(Pod{Name: "web-abc", Namespace: "prod", Phase: "Running"})
	})

	pod, err := c.GetPod(context.Background(), "prod", "web-abc")
	if err != nil {
		t.Fatalf("GetPod: %v", err)
	}
	if pod.Phase != "Running" {
		t.Fatalf("pod = %+v", pod)
	}
}

func TestDeletePod(t *testing.T) {
	var method, path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		method, path = r.Method, r.URL.Path
	})

	if err := c.DeletePod(context.Background(), "prod", "web-abc"); err != nil {
		t.Fatalf("DeletePod: %v", err)
	}
	if method != http.MethodDelete || path != "/api/v1/namespaces/prod/pods/web-abc" {
		t.Fatalf("request = %s %s", method, path)
	}
}

func TestErrorWithoutStructuredBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	})

	_, err := c.GetDeployment(context.Background(), "prod", "web")
	if err == nil {
		t.Fatal("GetDeployment succeeded on 502")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("error = %v, want status code surfaced", err)
	}
}
