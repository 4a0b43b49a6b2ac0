// Package lock guards against concurrent builder invocations with a marker
// file. A stale marker (the previous run crashed or hung) is recovered by
// terminating the lingering process and removing the marker.
package lock
