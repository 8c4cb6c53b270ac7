package watcher

import (
	"context"
	"time"
)

// Debounce coalesces an event stream into batches: a batch is delivered
// once the stream has been quiet for the given interval. Repeat events for
// one path collapse to the latest operation, except that create-then-delete
// cancels out to delete.
func Debounce(ctx context.Context, in <-chan Event, quiet time.Duration, deliver func([]Event)) {
	if quiet <= 0 {
		quiet = 500 * time.Millisecond
	}

	pending := make(map[string]Event)
	var order []string

	timer := time.NewTimer(quiet)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	flush := func() {
		if len(pending) == 0 {
			return
		}
		batch := make([]Event, 0, len(pending))
		for _, path := range order {
			if e, ok := pending[path]; ok {
				batch = append(batch, e)
			}
		}
		pending = make(map[string]Event)
		order = order[:0]
		deliver(batch)
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case e, ok := <-in:
			if !ok {
				flush()
				return
			}
			if _, seen := pending[e.Path]; !seen {
				order = append(order, e.Path)
			}
			pending[e.Path] = e

			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(quiet)
			armed = true

		case <-timer.C:
			armed = false
			flush()
		}
	}
}
