package docdb

import (
	"context"
	"sync"

	"github.com/azmodb/llrb"
)

// notifyLatch is the write-notification primitive required by §4.3: a
// coalescing broadcast. A writer calls broadcast after each committed
// non-local write; any number of waiters blocked on a prior wait()
// channel wake simultaneously, and a waiter that missed several writes
// still only wakes once, re-querying the log rather than replaying
// every missed broadcast. Modeled on the teacher's Notifier/Watcher
// pair (notify.go) but collapsed to a single store-wide signal, since
// unlike the teacher's per-key KV watchers the change feed has no
// per-document subscription to track.
type notifyLatch struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifyLatch() *notifyLatch {
	return &notifyLatch{ch: make(chan struct{})}
}

func (l *notifyLatch) broadcast() {
	l.mu.Lock()
	close(l.ch)
	l.ch = make(chan struct{})
	l.mu.Unlock()
}

func (l *notifyLatch) wait() <-chan struct{} {
	l.mu.Lock()
	ch := l.ch
	l.mu.Unlock()
	return ch
}

// Change is the wire shape of one change-feed entry (§6).
type Change struct {
	ID       string
	Seq      int64
	Deleted  bool
	LeafRevs []string
}

// ChangesSince yields change entries for every sequence strictly
// greater than since, in ascending sequence order (§4.2).
func (s *Store) ChangesSince(since int64) []Change {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Change
	s.seqIndex.ForEach(func(elem llrb.Element) bool {
		e := elem.(*seqElem)
		if e.seq <= since {
			return false
		}
		rec := s.byID[e.id]
		out = append(out, Change{
			ID:       e.id,
			Seq:      e.seq,
			Deleted:  rec.Winner().tombstone,
			LeafRevs: sortedLeafRevs(rec),
		})
		return false
	})
	return out
}

// Changes implements §4.3's changes_continuous: it yields every
// existing change with sequence > since in order, then — if
// continuous is true — suspends until a new non-local write commits
// and resumes, instead of terminating. The returned channel is closed
// when ctx is done or (in one-shot mode) once the existing log is
// drained.
func (s *Store) Changes(ctx context.Context, since int64, continuous bool) <-chan Change {
	out := make(chan Change, 64)
	go func() {
		defer close(out)
		last := since
		for {
			// Take the latch channel before querying, so a write that
			// commits between the query and the wait still wakes us.
			wait := s.latch.wait()
			for _, c := range s.ChangesSince(last) {
				select {
				case out <- c:
					last = c.Seq
				case <-ctx.Done():
					return
				}
			}
			if !continuous {
				return
			}

			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
