package docdb

import "testing"

func TestRevString(t *testing.T) {
	r := Rev{Gen: 3, Token: "abc"}
	if got := r.String(); got != "3-abc" {
		t.Fatalf("String() = %q, want %q", got, "3-abc")
	}
}

func TestParseRev(t *testing.T) {
	r, err := ParseRev("3-abc")
	if err != nil {
		t.Fatalf("ParseRev: %v", err)
	}
	if r.Gen != 3 || r.Token != "abc" {
		t.Fatalf("ParseRev = %+v, want {3 abc}", r)
	}

	for _, bad := range []string{"", "abc", "-abc", "3-", "x-abc", "0-abc"} {
		if _, err := ParseRev(bad); err != ErrInvalidRevision {
			t.Fatalf("ParseRev(%q): want ErrInvalidRevision, got %v", bad, err)
		}
	}
}

func TestTreeMergeExtendsBranch(t *testing.T) {
	tr := &Tree{}
	tr.Merge(1, []string{"a"}, Body{"v": 1}, false, defaultRevsLimit)
	tr.Merge(2, []string{"b", "a"}, Body{"v": 2}, false, defaultRevsLimit)

	if tr.Len() != 1 {
		t.Fatalf("expected a single extended branch, got %d", tr.Len())
	}
	winner := tr.At(tr.WinnerIndex())
	if winner.leafRev() != (Rev{Gen: 2, Token: "b"}) {
		t.Fatalf("winner = %v, want 2-b", winner.leafRev())
	}
}

func TestTreeMergeAlreadyKnownIsNoop(t *testing.T) {
	tr := &Tree{}
	tr.Merge(1, []string{"a"}, Body{"v": 1}, false, defaultRevsLimit)
	tr.Merge(1, []string{"a"}, Body{"v": 999}, false, defaultRevsLimit)

	if tr.Len() != 1 {
		t.Fatalf("expected 1 branch, got %d", tr.Len())
	}
	if tr.At(0).body["v"] != 1 {
		t.Fatalf("case 1 should be a no-op, body = %v", tr.At(0).body)
	}
}

func TestTreeMergeUnrelatedBranchIsConflict(t *testing.T) {
	tr := &Tree{}
	tr.Merge(1, []string{"a"}, Body{"v": 1}, false, defaultRevsLimit)
	tr.Merge(1, []string{"z"}, Body{"v": 2}, false, defaultRevsLimit)

	if tr.Len() != 2 {
		t.Fatalf("expected two conflicting branches, got %d", tr.Len())
	}
	winner := tr.At(tr.WinnerIndex())
	if winner.leafRev().Token != "z" {
		t.Fatalf("winner token = %q, want z (greater key)", winner.leafRev().Token)
	}
}

func TestTreeMergeSharedAncestrySplice(t *testing.T) {
	tr := &Tree{}
	tr.Merge(1, []string{"a"}, Body{"v": 0}, false, defaultRevsLimit)
	tr.Merge(2, []string{"b", "a"}, Body{"v": 1}, false, defaultRevsLimit)
	// a second branch off generation 1, sharing "a" as a common ancestor
	tr.Merge(3, []string{"d", "c", "a"}, Body{"v": 2}, false, defaultRevsLimit)

	if tr.Len() != 2 {
		t.Fatalf("expected 2 leaves after splice, got %d", tr.Len())
	}
	if !tr.Contains(Rev{Gen: 1, Token: "a"}) {
		t.Fatalf("expected common ancestor 1-a to remain reachable")
	}
}

func TestTreeWinnerPrefersNonTombstone(t *testing.T) {
	tr := &Tree{}
	tr.Merge(1, []string{"a"}, Body{"v": 1}, false, defaultRevsLimit)
	tr.Merge(2, []string{"b", "a"}, Body{"v": 2}, false, defaultRevsLimit)
	// a conflicting tombstone off the same ancestor, keyed above 2-b
	tr.Merge(2, []string{"z", "a"}, nil, true, defaultRevsLimit)

	winner := tr.At(tr.WinnerIndex())
	if winner.tombstone {
		t.Fatalf("winner should prefer the live branch over a higher-keyed tombstone")
	}
}

func TestTreeRevsLimitTruncates(t *testing.T) {
	tr := &Tree{}
	tr.Merge(1, []string{"a"}, Body{"v": 0}, false, 2)
	tr.Merge(2, []string{"b", "a"}, Body{"v": 1}, false, 2)
	tr.Merge(3, []string{"c", "b", "a"}, Body{"v": 2}, false, 2)

	winner := tr.At(tr.WinnerIndex())
	if len(winner.path) != 2 {
		t.Fatalf("expected path truncated to 2, got %d (%v)", len(winner.path), winner.path)
	}
	if tr.Contains(Rev{Gen: 1, Token: "a"}) {
		t.Fatalf("expected generation 1 to have been pruned away")
	}
}

func TestTreeAllRevisions(t *testing.T) {
	tr := &Tree{}
	tr.Merge(1, []string{"a"}, Body{}, false, defaultRevsLimit)
	tr.Merge(2, []string{"b", "a"}, Body{}, false, defaultRevsLimit)

	all := tr.AllRevisions()
	if len(all) != 2 {
		t.Fatalf("expected 2 reachable revisions, got %d", len(all))
	}
}
