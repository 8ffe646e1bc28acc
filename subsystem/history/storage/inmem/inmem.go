// Package inmem implements an in-memory history storage backend.
package inmem

import (
	"github.com/mobiq/stepflow/subsystem/history/storage/kv"
	"github.com/mobiq/stepflow/utils/uuid"

	"github.com/micromdm/nanolib/storage/kv/kvmap"
)

// InMem is an in-memory history storage backend.
type InMem struct {
	*kv.KV
}

// New creates a new in-memory history storage backend.
func New() *InMem {
	return &InMem{KV: kv.New(kvmap.New(), uuid.NewUUID())}
}
