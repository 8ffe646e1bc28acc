package inmem

import (
	"testing"

	"github.com/mobiq/stepflow/subsystem/history/storage"
	"github.com/mobiq/stepflow/subsystem/history/storage/test"
)

func TestInMem(t *testing.T) {
	test.TestHistoryStorage(t, func() (storage.AllStorage, error) { return New(), nil })
}
