// Package processor is documented in processor.go.
package processor
