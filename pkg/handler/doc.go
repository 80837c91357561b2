// Package handler is documented in handler.go.
package handler
