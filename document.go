package docdb

import (
	"encoding/json"
	"strings"
)

// localPrefix marks a local document: an ordinary key/value pair that
// bypasses the revision tree entirely (§3).
const localPrefix = "_local/"

func isLocalID(id string) bool { return strings.HasPrefix(id, localPrefix) }

// Revisions is the wire form of the "_revisions" field: the ancestor
// path of a document, leaf-first, alongside the leaf's generation.
type Revisions struct {
	Start int      `json:"start"`
	IDs   []string `json:"ids"`
}

// Document is the CouchDB-style wire shape of one document revision:
// reserved fields plus an arbitrary JSON body. Revisions is populated
// on output only when a caller asked for include_path, and is
// optional on input (defaulting to a single-element path).
type Document struct {
	ID        string
	Rev       Rev
	Revisions *Revisions
	Deleted   bool
	Body      Body
}

// MarshalJSON reconstructs the reserved fields alongside the body, the
// way every CouchDB-wire-compatible response does.
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(d.Body)+4)
	for k, v := range d.Body {
		out[k] = v
	}
	if d.ID != "" {
		out["_id"] = d.ID
	}
	if d.Rev.Gen > 0 {
		out["_rev"] = d.Rev.String()
	}
	if d.Revisions != nil {
		out["_revisions"] = d.Revisions
	}
	if d.Deleted {
		out["_deleted"] = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON strips the reserved fields _id, _rev, _revisions and
// _deleted out of the body, parsing _rev into a Rev.
func (d *Document) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw["_id"]; ok {
		if err := json.Unmarshal(v, &d.ID); err != nil {
			return err
		}
		delete(raw, "_id")
	}
	if v, ok := raw["_rev"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return ErrInvalidRevision
		}
		rev, err := ParseRev(s)
		if err != nil {
			return err
		}
		d.Rev = rev
		delete(raw, "_rev")
	}
	if v, ok := raw["_revisions"]; ok {
		r := &Revisions{}
		if err := json.Unmarshal(v, r); err != nil {
			return ErrInvalidRevision
		}
		d.Revisions = r
		delete(raw, "_revisions")
	}
	if v, ok := raw["_deleted"]; ok {
		if err := json.Unmarshal(v, &d.Deleted); err != nil {
			return ErrInvalidRevision
		}
		delete(raw, "_deleted")
	}

	body := make(Body, len(raw))
	for k, v := range raw {
		var val interface{}
		if err := json.Unmarshal(v, &val); err != nil {
			return err
		}
		body[k] = val
	}
	d.Body = body
	return nil
}

// revisionPath resolves the ancestor path (leaf-first) that a written
// document carries, defaulting to a single-element path when no
// _revisions block was supplied, and asserting consistency between
// _rev and _revisions when both are present (§4.2).
func (d *Document) revisionPath() ([]string, error) {
	if d.Revisions == nil {
		return []string{d.Rev.Token}, nil
	}
	if d.Revisions.Start != d.Rev.Gen || len(d.Revisions.IDs) == 0 || d.Revisions.IDs[0] != d.Rev.Token {
		return nil, ErrInvalidRevision
	}
	return d.Revisions.IDs, nil
}

// revisionsFromPath reconstructs the _revisions block of a branch
// path, for Store.Read's include_path output.
func revisionsFromPath(leafGen int, path []string) *Revisions {
	ids := make([]string, len(path))
	copy(ids, path)
	return &Revisions{Start: leafGen, IDs: ids}
}
