// Package middleware provides the HTTP middleware shared by modules:
// request logging, panic recovery, and CORS.
package middleware

import "net/http"

// Func wraps an http.Handler.
type Func func(http.Handler) http.Handler

// Stack is an ordered middleware chain. The first Func added runs outermost.
type Stack struct {
	fns []Func
}

// Use appends fns to the stack.
func (s *Stack) Use(fns ...Func) {
	s.fns = append(s.fns, fns...)
}

// Len returns the number of registered middleware.
func (s *Stack) Len() int {
	return len(s.fns)
}

// Apply wraps handler with every middleware in the stack.
func (s *Stack) Apply(handler http.Handler) http.Handler {
	for i := len(s.fns) - 1; i >= 0; i-- {
		handler = s.fns[i](handler)
	}
	return handler
}
