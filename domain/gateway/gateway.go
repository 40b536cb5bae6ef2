// Package gateway provides request/response value types for the admission
// layer.
package gateway

import "net/url"

// Request represents an inbound request (value type).
// This is extracted from HTTP and passed to the dispatcher.
type Request struct {
	// Authentication
	APIKey   string
	AdminKey string

	// HTTP request details
	Method string
	Path   string
	Params map[string]string // path parameters from the route pattern
	Query  url.Values
	Body   []byte

	// Metadata
	RemoteIP  string
	UserAgent string
	RequestID string
}

// Param returns a path parameter or "".
func (r Request) Param(name string) string {
	return r.Params[name]
}

// Response represents a handler result before serialization (value type).
type Response struct {
	Status  int
	Headers map[string]string
	Body    any
}

// OK returns a 200 response.
func OK(body any) Response {
	return Response{Status: 200, Body: body}
}

// Created returns a 201 response.
func Created(body any) Response {
	return Response{Status: 201, Body: body}
}
