package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWindow = 20 * time.Millisecond

func collectBatch(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(time.Second):
		t.Fatal("no batch emitted within 1s")
		return nil
	}
}

func TestDebouncerEmitsAfterWindow(t *testing.T) {
	d := NewDebouncer(testWindow)
	defer d.Stop()

	d.Add(FileEvent{Path: "lib/a.rb", Operation: OpModify})
	batch := collectBatch(t, d)

	require.Len(t, batch, 1)
	assert.Equal(t, "lib/a.rb", batch[0].Path)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerCoalescesCreateModify(t *testing.T) {
	d := NewDebouncer(testWindow)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.rb", Operation: OpCreate})
	d.Add(FileEvent{Path: "a.rb", Operation: OpModify})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncerCancelsCreateDelete(t *testing.T) {
	d := NewDebouncer(testWindow)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.rb", Operation: OpCreate})
	d.Add(FileEvent{Path: "a.rb", Operation: OpDelete})
	// A second path keeps the batch non-empty so we can observe it.
	d.Add(FileEvent{Path: "b.rb", Operation: OpModify})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "b.rb", batch[0].Path)
}

func TestDebouncerModifyDeleteBecomesDelete(t *testing.T) {
	d := NewDebouncer(testWindow)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.rb", Operation: OpModify})
	d.Add(FileEvent{Path: "a.rb", Operation: OpDelete})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpDelete, batch[0].Operation)
}

func TestDebouncerDeleteCreateBecomesModify(t *testing.T) {
	d := NewDebouncer(testWindow)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.rb", Operation: OpDelete})
	d.Add(FileEvent{Path: "a.rb", Operation: OpCreate})

	batch := collectBatch(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncerSeparatePathsStaySeparate(t *testing.T) {
	d := NewDebouncer(testWindow)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.rb", Operation: OpModify})
	d.Add(FileEvent{Path: "b.rb", Operation: OpDelete})

	batch := collectBatch(t, d)
	assert.Len(t, batch, 2)
}

func TestDebouncerStopIsIdempotent(t *testing.T) {
	d := NewDebouncer(time.Minute)
	d.Add(FileEvent{Path: "a.rb", Operation: OpModify})
	d.Stop()
	d.Stop()

	// Adds after stop are dropped silently.
	d.Add(FileEvent{Path: "b.rb", Operation: OpModify})

	_, open := <-d.Output()
	assert.False(t, open)
}
