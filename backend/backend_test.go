package backend

import (
	"os"
	"testing"

	"github.com/azmodb/docdb/pb"
)

func tempPath(t *testing.T) string {
	f, err := os.CreateTemp("", "docdb-backend-*.db")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	path := f.Name()
	f.Close()
	os.Remove(path)
	return path
}

func TestOpenEmpty(t *testing.T) {
	path := tempPath(t)
	defer os.RemoveAll(path)

	db, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	meta, records, locals, err := db.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if meta.Id != "" || meta.UpdateSeq != 0 {
		t.Fatalf("expected zero-value meta, got %+v", meta)
	}
	if len(records) != 0 || len(locals) != 0 {
		t.Fatalf("expected empty database, got %d records, %d locals", len(records), len(locals))
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := tempPath(t)
	defer os.RemoveAll(path)

	db, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	meta := &pb.Meta{Id: "db-1", UpdateSeq: 3, RevsLimit: 1000}
	records := []*pb.Record{
		{
			Id:      "doc-a",
			LastSeq: 3,
			Branches: []*pb.Branch{
				{
					Revisions: &pb.Revisions{LeafGen: 1, Path: []string{"tok1"}},
					Body:      []byte(`{"x":1}`),
				},
			},
		},
	}
	locals := []*pb.LocalRecord{
		{Id: "_local/replication-1", Body: []byte(`{"history":[]}`)},
	}

	if err := db.Save(meta, records, locals); err != nil {
		t.Fatalf("save: %v", err)
	}

	gotMeta, gotRecords, gotLocals, err := db.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gotMeta.Id != meta.Id || gotMeta.UpdateSeq != meta.UpdateSeq {
		t.Fatalf("meta mismatch: got %+v, want %+v", gotMeta, meta)
	}
	if len(gotRecords) != 1 || gotRecords[0].Id != "doc-a" {
		t.Fatalf("unexpected records: %+v", gotRecords)
	}
	if len(gotRecords[0].Branches) != 1 || gotRecords[0].Branches[0].Revisions.Path[0] != "tok1" {
		t.Fatalf("unexpected branches: %+v", gotRecords[0].Branches)
	}
	if len(gotLocals) != 1 || gotLocals[0].Id != "_local/replication-1" {
		t.Fatalf("unexpected locals: %+v", gotLocals)
	}
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	path := tempPath(t)
	defer os.RemoveAll(path)

	db, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	first := []*pb.Record{{Id: "doc-a", LastSeq: 1}}
	if err := db.Save(&pb.Meta{Id: "db-1"}, first, nil); err != nil {
		t.Fatalf("save first: %v", err)
	}

	second := []*pb.Record{{Id: "doc-b", LastSeq: 2}}
	if err := db.Save(&pb.Meta{Id: "db-1"}, second, nil); err != nil {
		t.Fatalf("save second: %v", err)
	}

	_, records, _, err := db.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 || records[0].Id != "doc-b" {
		t.Fatalf("expected only doc-b to remain, got %+v", records)
	}
}

func TestSync(t *testing.T) {
	path := tempPath(t)
	defer os.RemoveAll(path)

	db, err := Open(path, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
}
