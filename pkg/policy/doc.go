/*
Package policy implements load-balancing policies: stateful objects
that classify host distance and, on demand, produce a query plan for
one request.

# Policies

  - RoundRobinPolicy: cycles every non-ignored host, offset per plan
  - TokenAwarePolicy: prefers a request's token-owning replicas, falls
    back to a wrapped child policy for the rest
*/
package policy
