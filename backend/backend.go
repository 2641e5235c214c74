// Package backend implements docdb's optional durable backend: a
// bolt-backed snapshot store for DocumentRecords, local documents and
// store metadata. It is adapted from the teacher's bolt-backed
// Backend/Txn pair (azmodb/db's backend.go and backend/backend.go):
// same library, same "one root *bolt.DB, a handful of buckets"
// shape, generalized from raw key/value pairs to docdb's revision
// trees.
//
// A Store constructed with New() never touches this package. Open
// opens (or creates) a bolt file and Load reads back its snapshot,
// from which docdb.OpenDurable reconstructs a Store;
// Store.EnsureFullCommit persists the current in-memory state back to
// it through Save and Sync.
package backend

import (
	"time"

	"github.com/boltdb/bolt"

	"github.com/azmodb/docdb/pb"
)

var (
	metaBucket  = []byte("meta")
	docsBucket  = []byte("docs")
	localBucket = []byte("local")

	metaKey = []byte("meta")

	rootBuckets = [][]byte{metaBucket, docsBucket, localBucket}
)

// DB is docdb's default durable backend.
type DB struct {
	db *bolt.DB
}

// Open creates and opens a backend database at path, creating it
// automatically if it does not exist. Timeout bounds how long to wait
// for the file lock; zero waits indefinitely (Darwin/Linux only, per
// bolt.Options.Timeout).
func Open(path string, timeout time.Duration) (*DB, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, err
	}

	if err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range rootBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db: db}, nil
}

// Close releases all backend resources.
func (db *DB) Close() error { return db.db.Close() }

// Sync forces a durability barrier. bolt fsyncs on every committed
// update transaction, so an empty one is sufficient; it exists purely
// to give Store.EnsureFullCommit something concrete to call.
func (db *DB) Sync() error {
	return db.db.Update(func(tx *bolt.Tx) error { return nil })
}

// Save atomically replaces the backend's entire contents with meta,
// records and locals — a full snapshot, mirroring the teacher's
// DB.Snapshot (azmodb/db/memdb.go).
func (db *DB) Save(meta *pb.Meta, records []*pb.Record, locals []*pb.LocalRecord) error {
	return db.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(metaBucket).Put(metaKey, pb.MustMarshal(meta)); err != nil {
			return err
		}

		if err := tx.DeleteBucket(docsBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		docs, err := tx.CreateBucket(docsBucket)
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := docs.Put([]byte(r.Id), pb.MustMarshal(r)); err != nil {
				return err
			}
		}

		if err := tx.DeleteBucket(localBucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		locs, err := tx.CreateBucket(localBucket)
		if err != nil {
			return err
		}
		for _, l := range locals {
			if err := locs.Put([]byte(l.Id), pb.MustMarshal(l)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads back the full snapshot saved by Save.
func (db *DB) Load() (meta *pb.Meta, records []*pb.Record, locals []*pb.LocalRecord, err error) {
	meta = &pb.Meta{}
	err = db.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(metaBucket).Get(metaKey); data != nil {
			pb.MustUnmarshal(data, meta)
		}

		c := tx.Bucket(docsBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			r := &pb.Record{}
			pb.MustUnmarshal(v, r)
			records = append(records, r)
		}

		c = tx.Bucket(localBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			l := &pb.LocalRecord{}
			pb.MustUnmarshal(v, l)
			locals = append(locals, l)
		}
		return nil
	})
	return meta, records, locals, err
}
