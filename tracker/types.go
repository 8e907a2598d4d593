package tracker

// HighWaterMark is the reserved shard name for the global high-water mark.
// Per-projection shards report progress under their own names; this channel
// carries the position the whole log is safe to read up to.
const HighWaterMark = "$high-water-mark"

// Action tags the kind of progress event carried by a ShardState.
type Action string

const (
	ActionStarted Action = "Started"
	ActionUpdated Action = "Updated"
	ActionStopped Action = "Stopped"
)

// ShardState is a progress report for a single shard. Values are immutable
// once published.
type ShardState struct {
	ShardName string
	Position  int64
	Action    Action
}
