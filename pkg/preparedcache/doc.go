// Package preparedcache is documented in preparedcache.go.
package preparedcache
