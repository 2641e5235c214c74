package docdb

import "testing"

func mustWrite(t *testing.T, s *Store, doc Document) {
	t.Helper()
	if err := s.Write(doc); err != nil {
		t.Fatalf("write %s: %v", doc.ID, err)
	}
}

func TestStoreWriteAndRead(t *testing.T) {
	s := New()

	rev, _ := ParseRev("1-a")
	mustWrite(t, s, Document{ID: "widget", Rev: rev, Body: Body{"color": "red"}})

	docs, err := s.Read("widget", ReadSpec{Kind: RevsWinner}, false)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 1 || docs[0].Body["color"] != "red" {
		t.Fatalf("unexpected documents: %+v", docs)
	}

	if s.UpdateSeq() != 1 {
		t.Fatalf("expected update_seq 1, got %d", s.UpdateSeq())
	}
}

func TestStoreReadUnknownID(t *testing.T) {
	s := New()
	if _, err := s.Read("missing", ReadSpec{Kind: RevsWinner}, false); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreWriteMissingID(t *testing.T) {
	s := New()
	if err := s.Write(Document{Rev: Rev{Gen: 1, Token: "a"}}); err != ErrMissingID {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}
}

func TestStoreWriteConflictKeepsBothLeaves(t *testing.T) {
	s := New()
	rev1, _ := ParseRev("1-a")
	rev2, _ := ParseRev("1-z")
	mustWrite(t, s, Document{ID: "doc", Rev: rev1, Body: Body{"v": 1}})
	mustWrite(t, s, Document{ID: "doc", Rev: rev2, Body: Body{"v": 2}})

	docs, err := s.Read("doc", ReadSpec{Kind: RevsAll}, false)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 conflicting leaves, got %d", len(docs))
	}
}

func TestStoreLocalDocuments(t *testing.T) {
	s := New()
	if err := s.Write(Document{ID: "_local/checkpoint", Body: Body{"x": 1}}); err != nil {
		t.Fatalf("write local: %v", err)
	}

	docs, err := s.Read("_local/checkpoint", ReadSpec{Kind: RevsWinner}, false)
	if err != nil {
		t.Fatalf("read local: %v", err)
	}
	if docs[0].Rev.String() != "0-1" {
		t.Fatalf("expected synthetic rev 0-1, got %s", docs[0].Rev.String())
	}

	if s.UpdateSeq() != 0 {
		t.Fatalf("local writes must not advance update_seq, got %d", s.UpdateSeq())
	}

	if err := s.Write(Document{ID: "_local/checkpoint", Deleted: true}); err != nil {
		t.Fatalf("delete local: %v", err)
	}
	if _, err := s.Read("_local/checkpoint", ReadSpec{Kind: RevsWinner}, false); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after local delete, got %v", err)
	}
}

func TestStoreRevsDiff(t *testing.T) {
	s := New()
	rev, _ := ParseRev("1-a")
	mustWrite(t, s, Document{ID: "doc", Rev: rev, Body: Body{"v": 1}})

	missing, err := s.RevsDiff("doc", []string{"1-a", "2-b"})
	if err != nil {
		t.Fatalf("revs_diff: %v", err)
	}
	if len(missing) != 1 || missing[0] != "2-b" {
		t.Fatalf("unexpected missing set: %v", missing)
	}
}

func TestStoreRevsDiffUnknownID(t *testing.T) {
	s := New()
	missing, err := s.RevsDiff("nope", []string{"1-a", "1-b"})
	if err != nil {
		t.Fatalf("revs_diff: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("expected every rev missing, got %v", missing)
	}
}

func TestStoreInfoCounts(t *testing.T) {
	s := New()
	r1, _ := ParseRev("1-a")
	r2, _ := ParseRev("1-b")
	mustWrite(t, s, Document{ID: "doc1", Rev: r1, Body: Body{}})
	mustWrite(t, s, Document{ID: "doc2", Rev: r2, Deleted: true})

	info := s.Info()
	if info.DocCount != 1 || info.DeletedDocCount != 1 {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestStoreSetRevsLimitRejectsInvalid(t *testing.T) {
	s := New()
	if err := s.SetRevsLimit(0); err != ErrInvalidRevsLimit {
		t.Fatalf("expected ErrInvalidRevsLimit, got %v", err)
	}
}

func TestStoreChangesSinceOrdering(t *testing.T) {
	s := New()
	r1, _ := ParseRev("1-a")
	r2, _ := ParseRev("1-b")
	mustWrite(t, s, Document{ID: "doc1", Rev: r1, Body: Body{}})
	mustWrite(t, s, Document{ID: "doc2", Rev: r2, Body: Body{}})

	changes := s.ChangesSince(0)
	if len(changes) != 2 || changes[0].Seq >= changes[1].Seq {
		t.Fatalf("expected ascending sequence order, got %+v", changes)
	}
}
