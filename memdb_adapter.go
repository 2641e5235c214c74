package docdb

import "context"

// MemDatabase adapts a *Store to the Database interface: the "async
// wrapper over a synchronous store" the spec's design notes call for
// (§9). Each method spawns the single goroutine that drives its
// stream, the same shape as the teacher's Watcher.run()/queue()
// goroutines (watcher.go), just generalized from per-key watches to
// the six store operations.
type MemDatabase struct {
	mu    chan struct{} // 1-buffered mutex; zero value unusable, use NewMemDatabase
	store *Store
}

// NewMemDatabase adapts an existing store. Passing a nil store yields
// an adapter whose backing database does not exist yet, exercising
// the create_target path of §4.5 P1; Create(ctx) brings it into
// existence.
func NewMemDatabase(s *Store) *MemDatabase {
	m := &MemDatabase{mu: make(chan struct{}, 1), store: s}
	m.mu <- struct{}{}
	return m
}

func (m *MemDatabase) lock()   { <-m.mu }
func (m *MemDatabase) unlock() { m.mu <- struct{}{} }

func (m *MemDatabase) get() *Store {
	m.lock()
	s := m.store
	m.unlock()
	return s
}

// Create brings the backing store into existence if it does not
// already exist. Safe to call on an already-created database.
func (m *MemDatabase) Create(ctx context.Context) error {
	m.lock()
	defer m.unlock()
	if m.store == nil {
		m.store = New()
	}
	return nil
}

// ID implements Database.
func (m *MemDatabase) ID(ctx context.Context) (string, error) {
	s := m.get()
	if s == nil {
		return "", ErrBackendAbsent
	}
	return s.ID(), nil
}

// UpdateSeq implements Database.
func (m *MemDatabase) UpdateSeq(ctx context.Context) (int64, error) {
	s := m.get()
	if s == nil {
		return 0, ErrBackendAbsent
	}
	return s.UpdateSeq(), nil
}

// RevsLimit implements Database.
func (m *MemDatabase) RevsLimit(ctx context.Context) (int, error) {
	s := m.get()
	if s == nil {
		return 0, ErrBackendAbsent
	}
	return s.RevsLimit(), nil
}

// SetRevsLimit implements Database.
func (m *MemDatabase) SetRevsLimit(ctx context.Context, n int) error {
	s := m.get()
	if s == nil {
		return ErrBackendAbsent
	}
	return s.SetRevsLimit(n)
}

// EnsureFullCommit implements Database.
func (m *MemDatabase) EnsureFullCommit(ctx context.Context) error {
	s := m.get()
	if s == nil {
		return ErrBackendAbsent
	}
	return s.EnsureFullCommit()
}

// Changes implements Database.
func (m *MemDatabase) Changes(ctx context.Context, since int64, continuous bool) <-chan ChangeEvent {
	out := make(chan ChangeEvent, 64)
	s := m.get()
	go func() {
		defer close(out)
		if s == nil {
			select {
			case out <- ChangeEvent{Err: ErrBackendAbsent}:
			case <-ctx.Done():
			}
			return
		}

		last := since
		for c := range s.Changes(ctx, since, continuous) {
			last = c.Seq
			select {
			case out <- ChangeEvent{Change: c}:
			case <-ctx.Done():
				return
			}
		}
		select {
		case out <- ChangeEvent{Final: true, LastSeq: last}:
		case <-ctx.Done():
		}
	}()
	return out
}

// RevsDiff implements Database.
func (m *MemDatabase) RevsDiff(ctx context.Context, in <-chan RevDiffRequest) <-chan RevDiffResult {
	out := make(chan RevDiffResult, 64)
	s := m.get()
	go func() {
		defer close(out)
		for req := range in {
			var res RevDiffResult
			res.ID = req.ID
			if s == nil {
				res.Err = ErrBackendAbsent
			} else {
				res.Missing, res.Err = s.RevsDiff(req.ID, req.Revs)
			}
			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Read implements Database.
func (m *MemDatabase) Read(ctx context.Context, in <-chan ReadRequest, includePath bool) <-chan ReadResult {
	out := make(chan ReadResult, 64)
	s := m.get()
	go func() {
		defer close(out)
		for req := range in {
			if s == nil {
				select {
				case out <- ReadResult{Err: ErrBackendAbsent}:
				case <-ctx.Done():
					return
				}
				continue
			}

			docs, err := s.Read(req.ID, req.Spec, includePath)
			if err != nil {
				select {
				case out <- ReadResult{Err: err}:
				case <-ctx.Done():
					return
				}
				continue
			}
			for _, d := range docs {
				select {
				case out <- ReadResult{Doc: d}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Write implements Database.
func (m *MemDatabase) Write(ctx context.Context, in <-chan Document) <-chan *WriteFailure {
	out := make(chan *WriteFailure, 64)
	s := m.get()
	go func() {
		defer close(out)
		for doc := range in {
			var err error
			if s == nil {
				err = ErrBackendAbsent
			} else {
				err = s.Write(doc)
			}
			if err != nil {
				select {
				case out <- &WriteFailure{ID: doc.ID, Rev: doc.Rev.String(), Err: err}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

var _ Database = (*MemDatabase)(nil)
