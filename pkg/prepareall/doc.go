// Package prepareall is documented in prepareall.go.
package prepareall
