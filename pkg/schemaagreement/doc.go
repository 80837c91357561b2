// Package schemaagreement is documented in schemaagreement.go.
package schemaagreement
