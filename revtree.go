package docdb

import (
	"sort"
	"strconv"
	"strings"
)

// Rev is a revision identifier: a strictly positive generation plus an
// opaque token unique within one document's history.
type Rev struct {
	Gen   int
	Token string
}

// String renders the external "<gen>-<token>" form.
func (r Rev) String() string {
	return strconv.Itoa(r.Gen) + "-" + r.Token
}

// ParseRev parses the external "<gen>-<token>" form.
func ParseRev(s string) (Rev, error) {
	i := strings.IndexByte(s, '-')
	if i <= 0 || i == len(s)-1 {
		return Rev{}, ErrInvalidRevision
	}
	gen, err := strconv.Atoi(s[:i])
	if err != nil || gen < 1 {
		return Rev{}, ErrInvalidRevision
	}
	return Rev{Gen: gen, Token: s[i+1:]}, nil
}

// Body is the JSON-like payload of a document at one leaf. A nil Body
// paired with branch.tombstone == true represents a deleted revision.
type Body map[string]interface{}

// branch is exactly one leaf of a document's revision history plus its
// known ancestor chain, leaf-first.
type branch struct {
	leafGen   int
	path      []string // leaf-first tokens; len(path) >= 1
	body      Body
	tombstone bool
}

func (b *branch) leafRev() Rev { return Rev{Gen: b.leafGen, Token: b.path[0]} }

// revAt returns the revision at path index i (0 == leaf).
func (b *branch) revAt(i int) Rev {
	return Rev{Gen: b.leafGen - i, Token: b.path[i]}
}

// greaterKey reports whether a sorts after b under the tree's ordering
// key (leaf_gen, path[0]), ascending on leaf_gen then lexicographic on
// the leaf token. Used both for tree position and winner tie-breaking.
func greaterKey(a, b *branch) bool {
	if a.leafGen != b.leafGen {
		return a.leafGen > b.leafGen
	}
	return a.path[0] > b.path[0]
}

// Tree is the set of branches known for a single document, kept sorted
// ascending by (leaf_gen, path[0]). The zero value is an empty tree,
// legal only as a transient state before the first Merge.
type Tree struct {
	branches []*branch
}

// Len reports the number of leaves (conflicting or not) in the tree.
func (t *Tree) Len() int { return len(t.branches) }

// At returns the branch at ascending tree position i.
func (t *Tree) At(i int) *branch { return t.branches[i] }

func (t *Tree) insertSorted(nb *branch) {
	i := sort.Search(len(t.branches), func(i int) bool {
		b := t.branches[i]
		if b.leafGen != nb.leafGen {
			return b.leafGen > nb.leafGen
		}
		return b.path[0] >= nb.path[0]
	})
	t.branches = append(t.branches, nil)
	copy(t.branches[i+1:], t.branches[i:])
	t.branches[i] = nb
}

func (t *Tree) removeAt(i int) {
	t.branches = append(t.branches[:i], t.branches[i+1:]...)
}

func truncate(path []string, revsLimit int) []string {
	if revsLimit < 1 {
		revsLimit = 1
	}
	if len(path) > revsLimit {
		return path[:revsLimit]
	}
	return path
}

// Merge inserts an externally supplied revision path into the tree,
// idempotently, following the four cases of §4.1: already-known
// no-op, branch extension, shared-ancestry splice, or unrelated new
// branch. gen must be >= 1 and path must be nonempty leaf-first
// tokens; violating either is a programmer error and panics, it is
// never a recoverable runtime condition.
func (t *Tree) Merge(gen int, path []string, body Body, tombstone bool, revsLimit int) {
	if gen < 1 || len(path) == 0 {
		panic(errInvariant)
	}

	// Case 1: already known — no-op regardless of body.
	for _, b := range t.branches {
		j := b.leafGen - gen
		if j >= 0 && j < len(b.path) && b.path[j] == path[0] {
			return
		}
	}

	// Case 2: branch extension — path continues an existing leaf.
	for i, b := range t.branches {
		k := gen - b.leafGen
		if k >= 0 && k < len(path) && path[k] == b.path[0] {
			newPath := make([]string, 0, k+len(b.path))
			newPath = append(newPath, path[:k]...)
			newPath = append(newPath, b.path...)
			nb := &branch{leafGen: gen, path: truncate(newPath, revsLimit), body: body, tombstone: tombstone}
			t.removeAt(i)
			t.insertSorted(nb)
			return
		}
	}

	// Case 3: merge with shared ancestry. Iterate in descending
	// (leaf_gen, path[0]) order and splice against the first branch
	// that shares a common (gen, token) point; B is retained.
	for i := len(t.branches) - 1; i >= 0; i-- {
		b := t.branches[i]
		commonGen := b.leafGen + 1 - len(b.path)
		if g2 := gen + 1 - len(path); g2 > commonGen {
			commonGen = g2
		}
		idxB := b.leafGen - commonGen
		idxNew := gen - commonGen
		if idxB < 0 || idxB >= len(b.path) || idxNew < 0 || idxNew >= len(path) {
			continue
		}
		if b.path[idxB] != path[idxNew] {
			continue
		}

		newPath := make([]string, 0, idxNew+len(b.path)-idxB)
		newPath = append(newPath, path[:idxNew]...)
		newPath = append(newPath, b.path[idxB:]...)
		nb := &branch{leafGen: gen, path: truncate(newPath, revsLimit), body: body, tombstone: tombstone}
		t.insertSorted(nb)
		return
	}

	// Case 4: unrelated new branch.
	newPath := make([]string, len(path))
	copy(newPath, path)
	nb := &branch{leafGen: gen, path: truncate(newPath, revsLimit), body: body, tombstone: tombstone}
	t.insertSorted(nb)
}

// WinnerIndex returns the index, in ascending tree order, of the
// winning branch: the greatest-keyed non-tombstone branch, or if every
// branch is a tombstone, the greatest-keyed branch overall. Calling
// this on an empty tree is a programmer error.
func (t *Tree) WinnerIndex() int {
	if len(t.branches) == 0 {
		panic(errInvariant)
	}

	winner := -1
	for i, b := range t.branches {
		if b.tombstone {
			continue
		}
		if winner == -1 || greaterKey(b, t.branches[winner]) {
			winner = i
		}
	}
	if winner != -1 {
		return winner
	}

	winner = 0
	for i, b := range t.branches {
		if greaterKey(b, t.branches[winner]) {
			winner = i
		}
	}
	return winner
}

// Branches yields the tree's branches in descending (leaf_gen,
// path[0]) order, matching CouchDB's leaf-enumeration order.
func (t *Tree) Branches() []*branch {
	out := make([]*branch, len(t.branches))
	for i, b := range t.branches {
		out[len(t.branches)-1-i] = b
	}
	return out
}

// Find returns every branch whose path holds token at generation gen.
func (t *Tree) Find(gen int, token string) []*branch {
	var out []*branch
	for _, b := range t.branches {
		idx := b.leafGen - gen
		if idx >= 0 && idx < len(b.path) && b.path[idx] == token {
			out = append(out, b)
		}
	}
	return out
}

// Contains reports whether rev appears anywhere in the tree, leaf or
// interior, possibly pruned away.
func (t *Tree) Contains(rev Rev) bool {
	for _, b := range t.branches {
		idx := b.leafGen - rev.Gen
		if idx >= 0 && idx < len(b.path) && b.path[idx] == rev.Token {
			return true
		}
	}
	return false
}

// revRef names one revision reachable in the tree together with the
// branch it belongs to.
type revRef struct {
	branch *branch
	gen    int
}

// AllRevisions returns every (branch, gen) pair reachable in the tree,
// leaf-first per branch, highest-leaf branch first. Used by rev-diff.
func (t *Tree) AllRevisions() []revRef {
	var out []revRef
	for i := len(t.branches) - 1; i >= 0; i-- {
		b := t.branches[i]
		for j := range b.path {
			out = append(out, revRef{branch: b, gen: b.leafGen - j})
		}
	}
	return out
}
