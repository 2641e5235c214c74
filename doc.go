// Package docdb implements a small, consistent, in-memory document
// database that is wire-compatible with a CouchDB-style replication
// protocol.
//
// Every document is identified by a stable id and carries its revision
// history as a tree of branches (package-level type Tree), so that
// concurrent edits made on disconnected replicas are preserved as
// conflicts instead of silently overwriting one another. Store indexes
// documents by id and by an update sequence, and exposes a change feed
// derived from that sequence log. The replicate subpackage drives
// at-least-once, convergent, incremental synchronization between any
// two implementations of the Database interface declared here.
package docdb

// perror is a constant error, used the same way the teacher package
// uses it for its own sentinel errors: cheap to compare, safe for
// package-level vars.
type perror string

func (e perror) Error() string { return string(e) }

const (
	// ErrNotFound is returned when a document id, local document id or
	// database is unknown.
	ErrNotFound = perror("docdb: not found")

	// ErrInvalidRevision is returned when a _rev or _revisions field is
	// ill-formed, or the two disagree with each other.
	ErrInvalidRevision = perror("docdb: invalid revision")

	// ErrTransport is returned by remote Database implementations on
	// I/O failure. The in-memory backend never returns it.
	ErrTransport = perror("docdb: transport error")

	// ErrInvertedRange is returned by range-shaped queries when from
	// sorts after to.
	ErrInvertedRange = perror("docdb: inverted range")

	// ErrBackendAbsent is returned by update_seq when the backend (for
	// example a not-yet-created replication target) does not exist.
	ErrBackendAbsent = perror("docdb: backend absent")

	// ErrMissingID is returned when a write carries no _id.
	ErrMissingID = perror("docdb: missing document id")

	// ErrInvalidRevsLimit is returned when revs_limit is set below 1.
	ErrInvalidRevsLimit = perror("docdb: revs_limit must be >= 1")

	// errInvariant marks a programmer error inside the revision tree
	// (malformed merge input). It is never returned to a caller; it is
	// only ever the argument to panic.
	errInvariant = perror("docdb: revision tree invariant violated")
)

// WriteFailure is returned, one per failed input, by Database.Write. It
// carries enough detail for a replicator to tally doc_write_failures
// without aborting the stream.
type WriteFailure struct {
	ID  string
	Rev string
	Err error
}

func (f *WriteFailure) Error() string {
	return "docdb: write failed for " + f.ID + " " + f.Rev + ": " + f.Err.Error()
}

func (f *WriteFailure) Unwrap() error { return f.Err }
