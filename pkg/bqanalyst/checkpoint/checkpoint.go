// Package checkpoint provides durable, versioned snapshots of agent
// execution state over a document store.
//
// A thread's history is a chain of checkpoints linked by parent id. Each
// checkpoint references its channel values by (channel, version) rather
// than embedding them, so two checkpoints that share an unmodified channel
// share one stored blob. Pending task writes are persisted separately and
// attached to the checkpoint they will apply on top of, which is what lets
// a crashed step resume without losing completed tool results.
package checkpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested checkpoint doesn't exist.
var ErrNotFound = errors.New("checkpoint not found")

// ChannelVersions maps channel name to an opaque version token.
// Tokens order lexically in creation order; see NextVersion.
type ChannelVersions map[string]string

// Checkpoint is the persisted snapshot of execution state at one step.
type Checkpoint struct {
	// ID is monotonically sortable; see NewID.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`

	// ChannelValues holds the materialized channel state. It is stored as
	// versioned blobs, never inside the checkpoint record itself.
	ChannelValues map[string]any `json:"-"`

	// ChannelVersions references the blob version of every channel.
	ChannelVersions ChannelVersions `json:"channel_versions"`
}

// Metadata is arbitrary caller metadata attached to a checkpoint.
type Metadata map[string]any

// Ref addresses a checkpoint within a thread. An empty Namespace is the
// default scope; an empty CheckpointID means "latest" where a lookup
// accepts it.
type Ref struct {
	ThreadID     string
	Namespace    string
	CheckpointID string
}

// Tuple is the fully assembled view of one checkpoint.
type Tuple struct {
	Ref        Ref
	Checkpoint *Checkpoint
	Metadata   Metadata

	// ParentRef is nil for the first checkpoint of a thread/namespace.
	ParentRef *Ref

	// PendingWrites holds uncommitted task writes targeting this
	// checkpoint. Populated by GetTuple, intentionally left empty by List.
	PendingWrites []PendingWrite
}

// PendingWrite is one channel write proposed by a task before its step
// committed.
type PendingWrite struct {
	TaskID  string
	Channel string
	Value   any
}

// ChannelWrite is one (channel, value) pair emitted by a task.
type ChannelWrite struct {
	Channel string
	Value   any
}

// NewID returns a new checkpoint id. Ids are UTC-timestamp-prefixed with
// fixed-width nanoseconds, so lexical order matches creation order; a
// short random suffix keeps ids from the same instant distinct.
func NewID() string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z")
	return ts + "-" + uuid.NewString()[:8]
}

// NextVersion returns the version token following prev. An empty prev
// yields the first version. Tokens are fixed-width decimal counters, so
// they sort lexically in numeric order.
func NextVersion(prev string) (string, error) {
	n := int64(0)
	if prev != "" {
		// Tolerate a tie-break suffix after the counter.
		head, _, _ := strings.Cut(prev, ".")
		parsed, err := strconv.ParseInt(head, 10, 64)
		if err != nil {
			return "", fmt.Errorf("parse channel version %q: %w", prev, err)
		}
		n = parsed
	}
	return fmt.Sprintf("%032d", n+1), nil
}
