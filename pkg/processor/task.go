package processor

import (
	"github.com/cuemby/meridian/pkg/topology"
	"github.com/cuemby/meridian/pkg/types"
)

type taskKind int

const (
	taskHostAdd taskKind = iota
	taskHostRemove
	taskTokenMapUpdate
	taskClose
)

// task is the closed set of topology notifications that arrive from
// outside the worker goroutine and must be applied on it: a message
// enum posted to a channel and drained by the worker, in place of a
// virtual-dispatch task hierarchy.
type task struct {
	kind     taskKind
	host     *types.Host
	tokenMap topology.TokenMap
}
