package docdb

import "context"

// ChangeEvent is one item of a Database.Changes stream: either a
// Change, a terminal marker carrying the greatest sequence emitted
// (§6 "last_seq"), or an in-band error.
type ChangeEvent struct {
	Change  Change
	Final   bool
	LastSeq int64
	Err     error
}

// RevDiffRequest is one input item of Database.RevsDiff: a document id
// and the revisions a caller wants to know the target is missing.
type RevDiffRequest struct {
	ID   string
	Revs []string
}

// RevDiffResult is one output item of Database.RevsDiff (§6).
type RevDiffResult struct {
	ID      string
	Missing []string
	Err     error
}

// ReadRequest is one input item of Database.Read.
type ReadRequest struct {
	ID   string
	Spec ReadSpec
}

// ReadResult is one output item of Database.Read: exactly one document
// per matching branch, in input order; a missing id yields a single
// item with Err == ErrNotFound.
type ReadResult struct {
	Doc Document
	Err error
}

// Database is the six-operation contract shared by in-memory, remote
// and wrapper backends (§4.4). Every stream is lazy and
// back-pressured: a backend only advances as far as its consumer
// pulls, and write only yields an entry per input on failure.
type Database interface {
	// ID returns the backend's opaque identity string.
	ID(ctx context.Context) (string, error)

	// UpdateSeq returns the current sequence. It fails with
	// ErrBackendAbsent if the backend does not exist yet.
	UpdateSeq(ctx context.Context) (int64, error)

	// RevsLimit returns the current revision-pruning bound.
	RevsLimit(ctx context.Context) (int, error)

	// SetRevsLimit changes the revision-pruning bound.
	SetRevsLimit(ctx context.Context, n int) error

	// Create brings a not-yet-existing backend into existence. It is a
	// no-op for backends that already exist, and unsupported backends
	// may simply return nil.
	Create(ctx context.Context) error

	// EnsureFullCommit is a durability barrier; a no-op for volatile
	// backends.
	EnsureFullCommit(ctx context.Context) error

	// Changes streams change entries starting strictly after since,
	// optionally continuing to block for new writes.
	Changes(ctx context.Context, since int64, continuous bool) <-chan ChangeEvent

	// RevsDiff reports, for each input id, the subset of its revs not
	// present in the backend.
	RevsDiff(ctx context.Context, in <-chan RevDiffRequest) <-chan RevDiffResult

	// Read yields the documents matching each input (id, revs_spec).
	Read(ctx context.Context, in <-chan ReadRequest, includePath bool) <-chan ReadResult

	// Write applies each input document, streaming an entry only for
	// inputs that failed to apply.
	Write(ctx context.Context, in <-chan Document) <-chan *WriteFailure
}
