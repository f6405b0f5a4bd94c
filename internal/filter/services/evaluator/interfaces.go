package evaluator

import "github.com/haukened/simplefilter/internal/filter/repos/rulelist"

// SnapshotSource publishes the rule lists of every profile.
type SnapshotSource interface {
	Snapshot() *rulelist.Snapshot
}
