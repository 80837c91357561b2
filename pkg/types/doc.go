/*
Package types defines the core data structures shared across the
request processor: addresses, hosts, and the host map the processor
owns.

# Core Types

  - Address: a replica's network endpoint, used as a map key
  - Host: one replica, carrying lifecycle state and locality
  - HostState: Added, Up, Down, Removed
  - HostDistance: Local, Remote, Ignore — a policy's classification
  - HostMap: the processor's live address -> Host view

Host and HostMap are reference-shared with load-balancing policies.
Only the processor goroutine mutates a Host's State or a HostMap's
entries; see pkg/processor.
*/
package types
