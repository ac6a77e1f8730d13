package alert

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrTemplateNotFound is returned by Registry.Render for unknown template
// names. Callers are expected to log and skip the send rather than fail.
var ErrTemplateNotFound = fmt.Errorf("alert template not found")

// Template renders alerts of one shape (e.g. "anomaly", "fraud") from a
// context map. Title and Message may contain $name / ${name} placeholders.
type Template struct {
	Name     string
	Title    string
	Message  string
	Severity Severity
	Tags     []string
}

// Registry holds named alert templates. It is populated once at startup and
// read-only afterwards.
type Registry struct {
	templates map[string]Template
}

// NewRegistry builds a registry from pre-validated templates.
func NewRegistry(templates ...Template) *Registry {
	r := &Registry{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		r.templates[t.Name] = t
	}
	return r
}

// Render builds an Alert from the named template. Placeholders missing from
// ctx are kept verbatim in the output. The full context map is attached as
// the alert's details.
func (r *Registry) Render(name, source string, ctx map[string]any) (*Alert, error) {
	t, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return New(
		substitute(t.Title, ctx),
		substitute(t.Message, ctx),
		t.Severity,
		source,
		WithDetails(ctx),
		WithTags(t.Tags...),
	), nil
}

// placeholderRe matches $$, $name and ${name} in a pattern.
var placeholderRe = regexp.MustCompile(`\$(\$|\{[A-Za-z_][A-Za-z0-9_]*\}|[A-Za-z_][A-Za-z0-9_]*)`)

// substitute expands placeholders from ctx. Unknown placeholders are
// reproduced verbatim so a half-filled context never makes rendering fail,
// and "$$" escapes a literal dollar sign.
func substitute(pattern string, ctx map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(pattern, func(match string) string {
		if match == "$$" {
			return "$"
		}
		key := strings.TrimPrefix(match, "$")
		key = strings.TrimSuffix(strings.TrimPrefix(key, "{"), "}")
		if v, ok := ctx[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return match
	})
}
