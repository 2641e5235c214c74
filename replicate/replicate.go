// Package replicate drives convergence between two docdb.Database
// peers, following the CouchDB replication protocol's checkpointed,
// streaming design (§4.5): find a common starting point from
// checkpoint history, stream changes through rev-diff and bulk
// read/write, then record a new checkpoint on both ends.
//
// It is grounded on the teacher package's own queue()/Watcher
// goroutine style (azmodb/db/watcher.go) for driving a channel to
// completion, generalized from "wait for one key's value" to "drive
// one replication run to its stats".
package replicate

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/azmodb/docdb"
)

// HistEntry is one completed-run entry of a checkpoint's history list.
type HistEntry struct {
	SessionID        string `json:"session_id"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	StartLastSeq     int64  `json:"start_last_seq"`
	EndLastSeq       int64  `json:"end_last_seq"`
	RecordedSeq      int64  `json:"recorded_seq"`
	DocsRead         int    `json:"docs_read"`
	DocsWritten      int    `json:"docs_written"`
	DocWriteFailures int    `json:"doc_write_failures"`
}

// checkpoint is the `_local/<replication_id>` document shape (§6).
type checkpoint struct {
	ReplicationIDVersion int         `json:"replication_id_version"`
	SessionID            string      `json:"session_id"`
	SourceLastSeq        int64       `json:"source_last_seq"`
	History              []HistEntry `json:"history"`
}

const replicationIDVersion = 1

const maxHistoryEntries = 5

// Stats is the return value of a successful Replicate call (§4.5 P7).
type Stats struct {
	OK                   bool
	History              []HistEntry
	ReplicationIDVersion int
	SessionID            string
	SourceLastSeq        int64
}

// Replicate performs one replication run from source to target. If
// target does not yet exist, it is created only when createTarget is
// true; otherwise a missing target is fatal. When continuous is true
// the run never drains on its own: it keeps streaming new changes,
// checkpointing every checkpointInterval changes, until ctx is
// cancelled, and returns stats covering every change processed up to
// that point, including any processed after the last checkpoint.
func Replicate(ctx context.Context, source, target docdb.Database, createTarget, continuous bool) (Stats, error) {
	sourceID, targetUpdateSeq, err := verifyPeers(ctx, source, target, createTarget)
	if err != nil {
		return Stats{}, err
	}
	targetID, err := target.ID(ctx)
	if err != nil {
		return Stats{}, err
	}

	replicationID := generateReplicationID(sourceID, targetID, createTarget, continuous)
	localID := "_local/" + replicationID

	startupCheckpoint, sourceCk, targetCk, err := findCommonCheckpoint(ctx, source, target, localID)
	if err != nil {
		return Stats{}, err
	}
	log.Printf("replicate %s: resuming from checkpoint %d", replicationID, startupCheckpoint)
	_ = targetUpdateSeq
	_ = sourceCk
	_ = targetCk

	sessionID, err := newSessionID()
	if err != nil {
		return Stats{}, err
	}

	hist := HistEntry{
		SessionID:    sessionID,
		StartTime:    now(),
		StartLastSeq: startupCheckpoint,
		RecordedSeq:  startupCheckpoint,
		EndLastSeq:   startupCheckpoint,
	}

	recordedSeq, err := runPipeline(ctx, source, target, startupCheckpoint, continuous, &hist, func() error {
		return checkpointPeers(ctx, source, target, localID, sessionID, hist, startupCheckpoint)
	})
	if err != nil {
		return Stats{}, err
	}
	hist.RecordedSeq = recordedSeq
	hist.EndLastSeq = recordedSeq
	hist.EndTime = now()

	if continuous {
		// P5-P7 are unreachable in continuous mode per §4.5; the run
		// above only returns once ctx is cancelled, at which point no
		// final checkpoint is owed beyond whatever the periodic
		// checkpoints already recorded.
		return Stats{
			OK:                   true,
			History:              []HistEntry{hist},
			ReplicationIDVersion: replicationIDVersion,
			SessionID:            sessionID,
			SourceLastSeq:        recordedSeq,
		}, nil
	}

	log.Printf("replicate %s: commit barrier, recorded_seq %d", replicationID, recordedSeq)
	if err := target.EnsureFullCommit(ctx); err != nil {
		return Stats{}, err
	}

	if recordedSeq != startupCheckpoint {
		if err := checkpointPeers(ctx, source, target, localID, sessionID, hist, startupCheckpoint); err != nil {
			return Stats{}, err
		}
		log.Printf("replicate %s: checkpoint written, source_last_seq %d", replicationID, recordedSeq)
	}

	return Stats{
		OK:                   true,
		History:              []HistEntry{hist},
		ReplicationIDVersion: replicationIDVersion,
		SessionID:            sessionID,
		SourceLastSeq:        recordedSeq,
	}, nil
}

// verifyPeers implements P1: it queries both peers' update_seq,
// creating the target when it is absent and createTarget is set.
func verifyPeers(ctx context.Context, source, target docdb.Database, createTarget bool) (sourceID string, targetUpdateSeq int64, err error) {
	if _, err = source.UpdateSeq(ctx); err != nil {
		return "", 0, err
	}
	sourceID, err = source.ID(ctx)
	if err != nil {
		return "", 0, err
	}

	targetUpdateSeq, err = target.UpdateSeq(ctx)
	if err == docdb.ErrBackendAbsent {
		if !createTarget {
			return "", 0, docdb.ErrBackendAbsent
		}
		log.Printf("replicate: target absent, creating (create_target=true)")
		if err = target.Create(ctx); err != nil {
			return "", 0, err
		}
		targetUpdateSeq, err = target.UpdateSeq(ctx)
	}
	if err != nil {
		return "", 0, err
	}
	return sourceID, targetUpdateSeq, nil
}

// generateReplicationID implements P2.
func generateReplicationID(sourceID, targetID string, createTarget, continuous bool) string {
	h := md5.New()
	fmt.Fprintf(h, "%s%s%t%t", sourceID, targetID, createTarget, continuous)
	return hex.EncodeToString(h.Sum(nil))
}

func newSessionID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func now() string { return time.Now().Format(time.RFC1123Z) }

// findCommonCheckpoint implements P3.
func findCommonCheckpoint(ctx context.Context, source, target docdb.Database, localID string) (startup int64, sourceCk, targetCk *checkpoint, err error) {
	sourceCk, err = readCheckpoint(ctx, source, localID)
	if err != nil {
		return 0, nil, nil, err
	}
	targetCk, err = readCheckpoint(ctx, target, localID)
	if err != nil {
		return 0, nil, nil, err
	}

	if sourceCk == nil || targetCk == nil {
		return 0, sourceCk, targetCk, nil
	}
	if sourceCk.ReplicationIDVersion != replicationIDVersion || targetCk.ReplicationIDVersion != replicationIDVersion {
		return 0, sourceCk, targetCk, nil
	}
	if sourceCk.SessionID == targetCk.SessionID {
		return sourceCk.SourceLastSeq, sourceCk, targetCk, nil
	}

	targetSessions := make(map[string]bool, len(targetCk.History))
	for _, h := range targetCk.History {
		targetSessions[h.SessionID] = true
	}
	for _, h := range sourceCk.History {
		if targetSessions[h.SessionID] {
			return h.RecordedSeq, sourceCk, targetCk, nil
		}
	}
	return 0, sourceCk, targetCk, nil
}

// runPipeline implements P4: it drives source.changes through
// target.revs_diff, source.read and target.write one change at a
// time, single-threaded cooperative per §4.5. When continuous is
// true it never returns on its own (checkpointEvery is invoked every
// checkpointInterval changes instead); it returns once ctx is done.
func runPipeline(ctx context.Context, source, target docdb.Database, since int64, continuous bool, hist *HistEntry, checkpointEvery func() error) (int64, error) {
	const checkpointInterval = 100

	events := source.Changes(ctx, since, continuous)
	recordedSeq := since
	sinceLastCheckpoint := 0

	for ev := range events {
		if ev.Err != nil {
			return recordedSeq, ev.Err
		}
		if ev.Final {
			continue
		}

		c := ev.Change
		missing, err := revsDiffOne(ctx, target, c.ID, c.LeafRevs)
		if err != nil {
			return recordedSeq, err
		}
		recordedSeq = c.Seq
		hist.RecordedSeq = recordedSeq

		if len(missing) > 0 {
			docs, err := readMany(ctx, source, c.ID, missing)
			if err != nil {
				return recordedSeq, err
			}
			hist.DocsRead += len(docs)

			for _, doc := range docs {
				if err := writeOne(ctx, target, doc); err != nil {
					hist.DocWriteFailures++
				}
			}
		}

		if continuous {
			sinceLastCheckpoint++
			if sinceLastCheckpoint >= checkpointInterval {
				sinceLastCheckpoint = 0
				if err := target.EnsureFullCommit(ctx); err != nil {
					return recordedSeq, err
				}
				if err := checkpointEvery(); err != nil {
					return recordedSeq, err
				}
				log.Printf("replicate: periodic continuous checkpoint, recorded_seq %d", recordedSeq)
			}
		}

		select {
		case <-ctx.Done():
			return recordedSeq, nil
		default:
		}
	}

	return recordedSeq, nil
}

// checkpointPeers implements P6: it builds the new history entry,
// prepends it to each peer's existing history (truncated to the
// five most recent runs), and writes the resulting checkpoint
// document to both source and target.
func checkpointPeers(ctx context.Context, source, target docdb.Database, localID, sessionID string, hist HistEntry, startupCheckpoint int64) error {
	hist.DocsWritten = hist.DocsRead - hist.DocWriteFailures
	hist.EndLastSeq = hist.RecordedSeq
	hist.EndTime = now()

	for _, db := range []docdb.Database{source, target} {
		existing, err := readCheckpoint(ctx, db, localID)
		if err != nil {
			return err
		}
		var history []HistEntry
		if existing != nil {
			history = existing.History
		}
		history = append([]HistEntry{hist}, history...)
		if len(history) > maxHistoryEntries {
			history = history[:maxHistoryEntries]
		}

		ck := &checkpoint{
			ReplicationIDVersion: replicationIDVersion,
			SessionID:            sessionID,
			SourceLastSeq:        hist.RecordedSeq,
			History:              history,
		}
		if err := writeCheckpoint(ctx, db, localID, ck); err != nil {
			return err
		}
	}
	return nil
}

func readCheckpoint(ctx context.Context, db docdb.Database, localID string) (*checkpoint, error) {
	in := make(chan docdb.ReadRequest, 1)
	in <- docdb.ReadRequest{ID: localID, Spec: docdb.ReadSpec{Kind: docdb.RevsWinner}}
	close(in)

	out := db.Read(ctx, in, false)
	select {
	case res, ok := <-out:
		if !ok {
			return nil, docdb.ErrTransport
		}
		if res.Err == docdb.ErrNotFound {
			return nil, nil
		}
		if res.Err != nil {
			return nil, res.Err
		}
		data, err := json.Marshal(res.Doc.Body)
		if err != nil {
			return nil, err
		}
		ck := &checkpoint{}
		if err := json.Unmarshal(data, ck); err != nil {
			return nil, err
		}
		return ck, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func writeCheckpoint(ctx context.Context, db docdb.Database, localID string, ck *checkpoint) error {
	data, err := json.Marshal(ck)
	if err != nil {
		return err
	}
	var body docdb.Body
	if err := json.Unmarshal(data, &body); err != nil {
		return err
	}
	return writeOne(ctx, db, docdb.Document{ID: localID, Body: body})
}

func revsDiffOne(ctx context.Context, db docdb.Database, id string, revs []string) ([]string, error) {
	in := make(chan docdb.RevDiffRequest, 1)
	in <- docdb.RevDiffRequest{ID: id, Revs: revs}
	close(in)

	out := db.RevsDiff(ctx, in)
	select {
	case res, ok := <-out:
		if !ok {
			return nil, docdb.ErrTransport
		}
		return res.Missing, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func readMany(ctx context.Context, db docdb.Database, id string, revs []string) ([]docdb.Document, error) {
	in := make(chan docdb.ReadRequest, 1)
	in <- docdb.ReadRequest{ID: id, Spec: docdb.ReadSpec{Kind: docdb.RevsExplicit, Revs: revs}}
	close(in)

	out := db.Read(ctx, in, true)
	var docs []docdb.Document
	for res := range out {
		if res.Err != nil {
			return nil, res.Err
		}
		docs = append(docs, res.Doc)
	}
	return docs, nil
}

func writeOne(ctx context.Context, db docdb.Database, doc docdb.Document) error {
	in := make(chan docdb.Document, 1)
	in <- doc
	close(in)

	out := db.Write(ctx, in)
	var failure *docdb.WriteFailure
	for f := range out {
		failure = f
	}
	if failure != nil {
		return failure.Err
	}
	return nil
}
