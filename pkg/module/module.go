// Package module mounts prefixed HTTP sub-applications on a root router.
package module

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/JaimeStill/pallor/pkg/middleware"
)

// Module serves every request under a single-level prefix. The prefix is
// stripped before the request reaches the inner handler, which runs behind
// the module's own middleware stack.
type Module struct {
	prefix  string
	handler http.Handler
	stack   middleware.Stack
}

// New creates a Module for prefix (e.g. "/api").
func New(prefix string, handler http.Handler) (*Module, error) {
	if err := validatePrefix(prefix); err != nil {
		return nil, err
	}
	return &Module{
		prefix:  prefix,
		handler: handler,
	}, nil
}

// Prefix returns the module's path prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Use adds middleware to the module's stack.
func (m *Module) Use(fns ...middleware.Func) {
	m.stack.Use(fns...)
}

// ServeHTTP strips the prefix and dispatches through the middleware stack.
func (m *Module) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	inner := r.Clone(r.Context())
	inner.URL.Path = stripPrefix(r.URL.Path, m.prefix)
	inner.URL.RawPath = ""
	m.stack.Apply(m.handler).ServeHTTP(w, inner)
}

func stripPrefix(path, prefix string) string {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" {
		return "/"
	}
	return rest
}

func validatePrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("module prefix cannot be empty")
	}
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("module prefix must start with /: %s", prefix)
	}
	if strings.Count(prefix, "/") != 1 {
		return fmt.Errorf("module prefix must be a single path segment: %s", prefix)
	}
	return nil
}
