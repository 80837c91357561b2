// Package profile is documented in profile.go.
package profile
