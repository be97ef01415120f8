package checkpoint

import (
	"strconv"
	"strings"
)

// Document ids are derived deterministically from their logical tuple, so
// every store is a flat keyed map: point lookups need no secondary index
// and equality-filtered queries cover the rest.

// sanitize strips path separators, which document ids must not contain.
func sanitize(s string) string {
	return strings.ReplaceAll(s, "/", "_")
}

// checkpointKey derives the checkpoint record document id.
func checkpointKey(thread, ns, checkpointID string) string {
	return sanitize(thread) + "__" + sanitize(ns) + "__" + checkpointID
}

// blobKey derives the channel blob document id. Identical
// (thread, ns, channel, version) tuples map to one document, which is what
// makes blob reuse across checkpoints safe.
func blobKey(thread, ns, channel, version string) string {
	return sanitize(thread) + "__" + sanitize(ns) + "__" + sanitize(channel) + "__" + version
}

// writeKey derives the pending write document id. idx is the resolved
// slot, not the raw emission position.
func writeKey(thread, ns, checkpointID, taskID string, idx int) string {
	return sanitize(thread) + "__" + sanitize(ns) + "__" + checkpointID + "__" + sanitize(taskID) + "__" + strconv.Itoa(idx)
}
