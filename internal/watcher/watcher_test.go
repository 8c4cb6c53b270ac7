package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectEvents(t *testing.T, root string, act func(), want int) []Event {
	t.Helper()
	w, err := New(root)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	events := w.Events(ctx)

	time.Sleep(50 * time.Millisecond) // let the watch settle before acting
	act()

	var got []Event
	for len(got) < want {
		select {
		case e, ok := <-events:
			if !ok {
				return got
			}
			got = append(got, e)
		case <-ctx.Done():
			return got
		}
	}
	return got
}

func TestWatcherSeesCreateAndModify(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "main.go")

	got := collectEvents(t, root, func() {
		require.NoError(t, os.WriteFile(path, []byte("package main"), 0644))
	}, 1)

	require.NotEmpty(t, got)
	assert.Equal(t, "main.go", got[0].Path)
	assert.Contains(t, []Operation{OpCreate, OpModify}, got[0].Op)
}

func TestWatcherSeesDelete(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	got := collectEvents(t, root, func() {
		require.NoError(t, os.Remove(path))
	}, 1)

	require.NotEmpty(t, got)
	var sawDelete bool
	for _, e := range got {
		if e.Path == "gone.txt" && e.Op == OpDelete {
			sawDelete = true
		}
	}
	assert.True(t, sawDelete)
}

func TestWatcherIgnoresSkippedDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))

	got := collectEvents(t, root, func() {
		require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "index"), []byte("x"), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(root, "real.go"), []byte("package x"), 0644))
	}, 1)

	for _, e := range got {
		assert.NotContains(t, e.Path, ".git")
	}
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()

	got := collectEvents(t, root, func() {
		sub := filepath.Join(root, "sub")
		require.NoError(t, os.Mkdir(sub, 0755))
		time.Sleep(100 * time.Millisecond) // give the watch time to extend
		require.NoError(t, os.WriteFile(filepath.Join(sub, "new.go"), []byte("package sub"), 0644))
	}, 1)

	require.NotEmpty(t, got)
	var sawNested bool
	for _, e := range got {
		if e.Path == "sub/new.go" {
			sawNested = true
		}
	}
	assert.True(t, sawNested)
}

func TestDebounceCoalesces(t *testing.T) {
	in := make(chan Event, 16)
	var batches [][]Event
	done := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		Debounce(ctx, in, 50*time.Millisecond, func(batch []Event) {
			batches = append(batches, batch)
		})
		close(done)
	}()

	in <- Event{Path: "a.go", Op: OpCreate}
	in <- Event{Path: "a.go", Op: OpModify}
	in <- Event{Path: "b.go", Op: OpModify}
	close(in)
	<-done

	require.Len(t, batches, 1)
	batch := batches[0]
	require.Len(t, batch, 2, "repeat events for one path collapse")
	assert.Equal(t, "a.go", batch[0].Path)
	assert.Equal(t, OpModify, batch[0].Op, "latest op wins")
	assert.Equal(t, "b.go", batch[1].Path)
}

func TestDebounceQuietPeriodSplitsBatches(t *testing.T) {
	in := make(chan Event, 16)
	batchCh := make(chan []Event, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Debounce(ctx, in, 40*time.Millisecond, func(batch []Event) {
		batchCh <- batch
	})

	in <- Event{Path: "a.go", Op: OpModify}
	first := <-batchCh

	in <- Event{Path: "b.go", Op: OpModify}
	second := <-batchCh

	assert.Equal(t, "a.go", first[0].Path)
	assert.Equal(t, "b.go", second[0].Path)
}
