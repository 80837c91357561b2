/*
Package pool is documented in pool.go.

Fake, in fake.go, is an in-memory Manager for tests that exercise
processor dispatch and host lifecycle logic without a network.
*/
package pool
