package queue

import "errors"

// ErrStorage marks database failures surfaced to stage workers. A per-job
// tool error is retried or fails the job; a storage failure means the store
// itself is unhealthy, so the worker stops and the job keeps whatever stage
// its last committed transaction reached.
var ErrStorage = errors.New("storage failure")
