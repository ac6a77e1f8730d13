// Package workload is the thin HTTP client for the workload-orchestrator
// control plane. Only the calls the remediation actions need are implemented:
// reading and patching a deployment's replica count, and deleting a pod.
package workload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opsrelay/opsrelay/internal/config"
)

// API is the surface consumed by remediation actions. Tests substitute fakes.
type API interface {
	GetDeployment(ctx context.Context, namespace, name string) (*Deployment, error)
	ScaleDeployment(ctx context.Context, namespace, name string, replicas int) error
	GetPod(ctx context.Context, namespace, name string) (*Pod, error)
	DeletePod(ctx context.Context, namespace, name string) error
}

// Deployment is the subset of deployment state the actions care about.
type Deployment struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Replicas  int    `json:"replicas"`
}

// Pod is the subset of pod state the actions care about.
type Pod struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Phase     string `json:"phase"`
}

// Client talks to the control plane over HTTP with bearer-token auth.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a Client configured from cfg.
func New(cfg config.WorkloadConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetDeployment reads the named deployment. A 404 surfaces as an error the
// caller treats as "deployment does not exist".
func (c *Client) GetDeployment(ctx context.Context, namespace, name string) (*Deployment, error) {
	path := fmt.Sprintf("/api/v1/namespaces/%s/deployments/%s", namespace, name)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out Deployment
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding deployment: %w", err)
	}
	return &out, nil
}

// ScaleDeployment patches the deployment's replica count.
func (c *Client) ScaleDeployment(ctx context.Context, namespace, name string, replicas int) error {
	path := fmt.Sprintf("/api/v1/namespaces/%s/deployments/%s/scale", namespace, name)
	payload, err := json.Marshal(map[string]int{"replicas": replicas})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch, path, bytes.NewReader(payload))
	return err
}

// GetPod reads the named pod. A 404 surfaces as an error the caller treats as
// "pod does not exist".
func (c *Client) GetPod(ctx context.Context, namespace, name string) (*Pod, error) {
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods/%s", namespace, name)
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out Pod
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding pod: %w", err)
	}
	return &out, nil
}

// DeletePod removes the named pod; the orchestrator's controller recreates it.
func (c *Client) DeletePod(ctx context.Context, namespace, name string) error {
	path := fmt.Sprintf("/api/v1/namespaces/%s/pods/%s", namespace, name)
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

// do executes an authenticated request and returns the response body.
// Non-2xx responses are converted to descriptive errors.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer res.Body.Close()

	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(b, &apiErr); jsonErr == nil {
			if apiErr.Error != "" {
				return nil, fmt.Errorf("control plane error (%d): %s", res.StatusCode, apiErr.Error)
			}
			if apiErr.Message != "" {
				return nil, fmt.Errorf("control plane error (%d): %s", res.StatusCode, apiErr.Message)
			}
		}
		return nil, fmt.Errorf("control plane returned %d", res.StatusCode)
	}
	return b, nil
}
