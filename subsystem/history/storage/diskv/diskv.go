// Package diskv implements a diskv-backed history storage backend.
package diskv

import (
	"path/filepath"

	"github.com/mobiq/stepflow/subsystem/history/storage/kv"
	"github.com/mobiq/stepflow/utils/uuid"

	"github.com/micromdm/nanolib/storage/kv/kvdiskv"
	"github.com/peterbourgon/diskv/v3"
)

// Diskv is an on-disk history storage backend.
type Diskv struct {
	*kv.KV
}

// New creates a new history store on disk at path.
func New(path string) *Diskv {
	return &Diskv{
		KV: kv.New(kvdiskv.New(diskv.New(diskv.Options{
			BasePath:     filepath.Join(path, "history"),
			Transform:    kvdiskv.FlatTransform,
			CacheSizeMax: 1024 * 1024,
		})), uuid.NewUUID()),
	}
}
