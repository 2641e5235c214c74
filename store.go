package docdb

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/azmodb/llrb"

	"github.com/azmodb/docdb/backend"
)

const defaultRevsLimit = 1000

// DocumentRecord is the per-id entry held by the store (§3): its
// revision tree, the cached winner-rule output, and the sequence
// assigned at its most recent write.
type DocumentRecord struct {
	tree    *Tree
	winner  int
	lastSeq int64
}

// Tree returns the document's revision tree.
func (r *DocumentRecord) Tree() *Tree { return r.tree }

// Winner returns the branch selected as the canonical current version.
func (r *DocumentRecord) Winner() *branch { return r.tree.At(r.winner) }

// seqElem orders the by_seq index by sequence number; id is carried
// along but never participates in the comparison.
type seqElem struct {
	seq int64
	id  string
}

func (e *seqElem) Compare(other llrb.Element) int {
	o := other.(*seqElem)
	switch {
	case e.seq < o.seq:
		return -1
	case e.seq > o.seq:
		return 1
	default:
		return 0
	}
}

// idElem orders the by_id index lexicographically by document id, so
// that Store.forEach has a deterministic iteration order.
type idElem struct {
	id  string
	rec *DocumentRecord
}

func (e *idElem) Compare(other llrb.Element) int {
	return strings.Compare(e.id, other.(*idElem).id)
}

// Store maps document id to DocumentRecord and maintains the
// sequence-indexed change log and the local-document key/value map
// (§3). All access is serialized by a single writer/reader mutex —
// the spec's concurrency model (§5) is single-threaded cooperative,
// not lock-free MVCC, so unlike the teacher's atomic-pointer-swapped
// tree this keeps a plain mutex and lets the two llrb indexes stay
// immutable-per-commit only because that is the cheapest correct way
// to keep them sorted, not because readers need to run lock-free.
type Store struct {
	mu sync.Mutex

	id        string
	updateSeq int64
	revsLimit int

	byID     map[string]*DocumentRecord
	idIndex  *llrb.Tree
	seqIndex *llrb.Tree
	local    map[string]Body

	latch   *notifyLatch
	backend *backend.DB // nil for a purely volatile store
}

// New returns an empty, volatile, in-memory document store with a
// freshly chosen identity.
func New() *Store { return NewWithID(randID()) }

// NewWithID returns an empty, volatile, in-memory document store with
// the given stable identity. Useful for tests and for replicating
// against a deterministic peer id.
func NewWithID(id string) *Store {
	return &Store{
		id:        id,
		revsLimit: defaultRevsLimit,
		byID:      make(map[string]*DocumentRecord),
		idIndex:   &llrb.Tree{},
		seqIndex:  &llrb.Tree{},
		local:     make(map[string]Body),
		latch:     newNotifyLatch(),
	}
}

func randID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ID returns the database's opaque identity string.
func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// UpdateSeq returns the current update sequence.
func (s *Store) UpdateSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateSeq
}

// RevsLimit returns the current revision-pruning bound.
func (s *Store) RevsLimit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revsLimit
}

// SetRevsLimit changes the revision-pruning bound applied to future
// writes. Already-pruned history is never restored.
func (s *Store) SetRevsLimit(n int) error {
	if n < 1 {
		return ErrInvalidRevsLimit
	}
	s.mu.Lock()
	s.revsLimit = n
	s.mu.Unlock()
	return nil
}

// Write preprocesses and applies one document write (§4.2): reserved
// fields are stripped, the revision path is resolved from _rev/
// _revisions, and for a non-local id the write is merged into the
// document's revision tree, the winner is recomputed, and the store's
// update_seq is advanced. Local documents (id prefixed _local/)
// bypass the revision tree entirely.
func (s *Store) Write(doc Document) error {
	if doc.ID == "" {
		return ErrMissingID
	}

	if isLocalID(doc.ID) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if doc.Deleted {
			delete(s.local, doc.ID)
		} else {
			s.local[doc.ID] = doc.Body
		}
		return nil
	}

	if doc.Rev.Gen < 1 {
		return ErrInvalidRevision
	}
	path, err := doc.revisionPath()
	if err != nil {
		return err
	}

	var body Body
	if !doc.Deleted {
		body = doc.Body
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, existed := s.byID[doc.ID]
	tr := &Tree{}
	if existed {
		tr = rec.tree
	}
	tr.Merge(doc.Rev.Gen, path, body, doc.Deleted, s.revsLimit)
	winner := tr.WinnerIndex()

	newSeq := s.updateSeq + 1
	seqTxn := s.seqIndex.Txn()
	if existed {
		seqTxn.Delete(&seqElem{seq: rec.lastSeq})
	}
	seqTxn.Insert(&seqElem{seq: newSeq, id: doc.ID})
	s.seqIndex = seqTxn.Commit()

	newRec := &DocumentRecord{tree: tr, winner: winner, lastSeq: newSeq}
	idTxn := s.idIndex.Txn()
	idTxn.Insert(&idElem{id: doc.ID, rec: newRec})
	s.idIndex = idTxn.Commit()

	s.byID[doc.ID] = newRec
	s.updateSeq = newSeq
	s.latch.broadcast()
	return nil
}

// RevsKind selects which branches Store.Read yields for an id.
type RevsKind int

const (
	// RevsWinner yields just the winning branch's document.
	RevsWinner RevsKind = iota
	// RevsAll yields every leaf, including tombstones.
	RevsAll
	// RevsExplicit yields, for each listed revision, the documents of
	// every branch whose path contains that revision.
	RevsExplicit
)

// ReadSpec selects the revisions Store.Read returns for one id.
type ReadSpec struct {
	Kind RevsKind
	Revs []string // used only when Kind == RevsExplicit
}

// Read produces the documents matching spec for id (§4.2). For a
// local id only RevsWinner is valid and yields the raw body with a
// synthetic _rev of "0-1". Returns ErrNotFound if id is unknown.
func (s *Store) Read(id string, spec ReadSpec, includePath bool) ([]Document, error) {
	if isLocalID(id) {
		if spec.Kind != RevsWinner {
			return nil, ErrInvalidRevision
		}
		s.mu.Lock()
		body, ok := s.local[id]
		s.mu.Unlock()
		if !ok {
			return nil, ErrNotFound
		}
		return []Document{{ID: id, Rev: Rev{Gen: 0, Token: "1"}, Body: body}}, nil
	}

	s.mu.Lock()
	rec, ok := s.byID[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	switch spec.Kind {
	case RevsWinner:
		return []Document{s.toDocument(id, rec.Winner(), includePath)}, nil

	case RevsAll:
		branches := rec.tree.Branches()
		docs := make([]Document, 0, len(branches))
		for _, b := range branches {
			docs = append(docs, s.toDocument(id, b, includePath))
		}
		return docs, nil

	case RevsExplicit:
		var docs []Document
		for _, revStr := range spec.Revs {
			rev, err := ParseRev(revStr)
			if err != nil {
				return nil, err
			}
			for _, b := range rec.tree.Find(rev.Gen, rev.Token) {
				docs = append(docs, s.toDocument(id, b, includePath))
			}
		}
		return docs, nil
	}
	return nil, ErrInvalidRevision
}

func (s *Store) toDocument(id string, b *branch, includePath bool) Document {
	d := Document{ID: id, Rev: b.leafRev(), Deleted: b.tombstone}
	if !b.tombstone {
		d.Body = b.body
	}
	if includePath {
		d.Revisions = revisionsFromPath(b.leafGen, b.path)
	}
	return d
}

// RevsDiff returns the subset of revs that do not appear anywhere in
// id's revision tree (§4.2). An unknown id reports every rev missing.
// Duplicate inputs collapse per set semantics.
func (s *Store) RevsDiff(id string, revs []string) ([]string, error) {
	s.mu.Lock()
	rec, ok := s.byID[id]
	s.mu.Unlock()

	seen := make(map[string]bool, len(revs))
	var missing []string
	for _, r := range revs {
		if seen[r] {
			continue
		}
		seen[r] = true

		rev, err := ParseRev(r)
		if err != nil {
			return nil, err
		}
		if ok && rec.tree.Contains(rev) {
			continue
		}
		missing = append(missing, r)
	}
	return missing, nil
}

// Info bundles the summary fields a CouchDB-style GET /<db> reply
// carries: identity, update_seq, revs_limit and document counts.
type Info struct {
	ID              string
	UpdateSeq       int64
	RevsLimit       int
	DocCount        int
	DeletedDocCount int
}

// Info returns a snapshot of the store's summary counters.
func (s *Store) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{ID: s.id, UpdateSeq: s.updateSeq, RevsLimit: s.revsLimit}
	for _, rec := range s.byID {
		if rec.Winner().tombstone {
			info.DeletedDocCount++
		} else {
			info.DocCount++
		}
	}
	return info
}

// forEach visits every document record in ascending id order.
func (s *Store) forEach(fn func(id string, rec *DocumentRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idIndex.ForEach(func(elem llrb.Element) bool {
		e := elem.(*idElem)
		fn(e.id, e.rec)
		return false
	})
}

func sortedLeafRevs(rec *DocumentRecord) []string {
	branches := rec.tree.Branches()
	out := make([]string, 0, len(branches))
	for _, b := range branches {
		out = append(out, b.leafRev().String())
	}
	sort.Strings(out)
	return out
}
