package docdb

import (
	"encoding/json"
	"time"

	"github.com/azmodb/llrb"

	"github.com/azmodb/docdb/backend"
	"github.com/azmodb/docdb/pb"
)

// OpenDurable opens (creating if necessary) a bolt-backed store at
// path and reconstructs its in-memory state, the durable counterpart
// to New(). A freshly created file yields an empty store seeded with
// a new identity; EnsureFullCommit persists subsequent writes back to
// the same file.
func OpenDurable(path string, timeout time.Duration) (*Store, error) {
	db, err := backend.Open(path, timeout)
	if err != nil {
		return nil, err
	}

	meta, records, locals, err := db.Load()
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		id:        meta.Id,
		updateSeq: meta.UpdateSeq,
		revsLimit: int(meta.RevsLimit),
		byID:      make(map[string]*DocumentRecord),
		idIndex:   &llrb.Tree{},
		seqIndex:  &llrb.Tree{},
		local:     make(map[string]Body),
		latch:     newNotifyLatch(),
		backend:   db,
	}
	if s.id == "" {
		s.id = randID()
	}
	if s.revsLimit == 0 {
		s.revsLimit = defaultRevsLimit
	}

	for _, r := range records {
		rec, err := recordFromPB(r)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.byID[r.Id] = rec

		idTxn := s.idIndex.Txn()
		idTxn.Insert(&idElem{id: r.Id, rec: rec})
		s.idIndex = idTxn.Commit()

		seqTxn := s.seqIndex.Txn()
		seqTxn.Insert(&seqElem{seq: rec.lastSeq, id: r.Id})
		s.seqIndex = seqTxn.Commit()
	}

	for _, l := range locals {
		var body Body
		if err := json.Unmarshal(l.Body, &body); err != nil {
			db.Close()
			return nil, err
		}
		s.local[l.Id] = body
	}

	return s, nil
}

// EnsureFullCommit persists the store's current in-memory state to its
// durable backend, if any (§4.4/§6's ensure_full_commit). A purely
// volatile store (New/NewWithID) treats this as a no-op, matching the
// teacher's memdb backend having nothing to flush.
func (s *Store) EnsureFullCommit() error {
	s.mu.Lock()
	if s.backend == nil {
		s.mu.Unlock()
		return nil
	}

	meta := &pb.Meta{Id: s.id, UpdateSeq: s.updateSeq, RevsLimit: int64(s.revsLimit)}
	records := make([]*pb.Record, 0, len(s.byID))
	for id, rec := range s.byID {
		r, err := recordToPB(id, rec)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		records = append(records, r)
	}
	locals := make([]*pb.LocalRecord, 0, len(s.local))
	for id, body := range s.local {
		data, err := json.Marshal(body)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		locals = append(locals, &pb.LocalRecord{Id: id, Body: data})
	}
	db := s.backend
	s.mu.Unlock()

	if err := db.Save(meta, records, locals); err != nil {
		return err
	}
	return db.Sync()
}

// Close releases the store's durable backend, if any.
func (s *Store) Close() error {
	s.mu.Lock()
	db := s.backend
	s.mu.Unlock()
	if db == nil {
		return nil
	}
	return db.Close()
}

func recordToPB(id string, rec *DocumentRecord) (*pb.Record, error) {
	branches := rec.tree.branches
	out := &pb.Record{Id: id, LastSeq: rec.lastSeq, Branches: make([]*pb.Branch, len(branches))}
	for i, b := range branches {
		var body []byte
		if !b.tombstone {
			data, err := json.Marshal(b.body)
			if err != nil {
				return nil, err
			}
			body = data
		}
		out.Branches[i] = &pb.Branch{
			Revisions: &pb.Revisions{LeafGen: int64(b.leafGen), Path: append([]string(nil), b.path...)},
			Body:      body,
			Tombstone: b.tombstone,
		}
	}
	return out, nil
}

func recordFromPB(r *pb.Record) (*DocumentRecord, error) {
	tr := &Tree{branches: make([]*branch, len(r.Branches))}
	for i, pbb := range r.Branches {
		var body Body
		if !pbb.Tombstone && len(pbb.Body) > 0 {
			if err := json.Unmarshal(pbb.Body, &body); err != nil {
				return nil, err
			}
		}
		tr.branches[i] = &branch{
			leafGen:   int(pbb.Revisions.LeafGen),
			path:      append([]string(nil), pbb.Revisions.Path...),
			body:      body,
			tombstone: pbb.Tombstone,
		}
	}

	winner := 0
	if tr.Len() > 0 {
		winner = tr.WinnerIndex()
	}
	return &DocumentRecord{tree: tr, winner: winner, lastSeq: r.LastSeq}, nil
}
