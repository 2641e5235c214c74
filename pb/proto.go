// Package pb holds the wire messages persisted by the backend package.
// They are hand-declared with protobuf struct tags in the same style
// the teacher's pb package used for its generated Pair/PairInfo types
// (see pb/build.go's commented-out helpers) rather than produced by
// protoc: the messages are small and stable enough that a generator
// pass buys nothing, and gogo/protobuf's reflection-based Marshal/
// Unmarshal (the pre-codegen path it inherited from golang/protobuf)
// works directly off the tags below.
//
// These messages are never the CouchDB replication wire shape — that
// is fixed as JSON by the protocol (§6) and lives in document.go.
// They only describe what the optional bolt-backed durability layer
// stores on disk.
package pb

import "github.com/gogo/protobuf/proto"

// Revisions is the persisted form of a branch's ancestor path.
type Revisions struct {
	LeafGen int64    `protobuf:"varint,1,opt,name=leaf_gen" json:"leaf_gen,omitempty"`
	Path    []string `protobuf:"bytes,2,rep,name=path" json:"path,omitempty"`
}

func (m *Revisions) Reset()         { *m = Revisions{} }
func (m *Revisions) String() string { return proto.CompactTextString(m) }
func (*Revisions) ProtoMessage()    {}

// Branch is the persisted form of one revtree.branch.
type Branch struct {
	Revisions *Revisions `protobuf:"bytes,1,opt,name=revisions" json:"revisions,omitempty"`
	Body      []byte     `protobuf:"bytes,2,opt,name=body" json:"body,omitempty"`
	Tombstone bool       `protobuf:"varint,3,opt,name=tombstone" json:"tombstone,omitempty"`
}

func (m *Branch) Reset()         { *m = Branch{} }
func (m *Branch) String() string { return proto.CompactTextString(m) }
func (*Branch) ProtoMessage()    {}

// Record is the persisted form of one docdb.DocumentRecord.
type Record struct {
	Id       string    `protobuf:"bytes,1,opt,name=id" json:"id,omitempty"`
	LastSeq  int64     `protobuf:"varint,2,opt,name=last_seq" json:"last_seq,omitempty"`
	Branches []*Branch `protobuf:"bytes,3,rep,name=branches" json:"branches,omitempty"`
}

func (m *Record) Reset()         { *m = Record{} }
func (m *Record) String() string { return proto.CompactTextString(m) }
func (*Record) ProtoMessage()    {}

// LocalRecord is the persisted form of one local document.
type LocalRecord struct {
	Id   string `protobuf:"bytes,1,opt,name=id" json:"id,omitempty"`
	Body []byte `protobuf:"bytes,2,opt,name=body" json:"body,omitempty"`
}

func (m *LocalRecord) Reset()         { *m = LocalRecord{} }
func (m *LocalRecord) String() string { return proto.CompactTextString(m) }
func (*LocalRecord) ProtoMessage()    {}

// Meta is the persisted form of the store's scalar fields.
type Meta struct {
	Id        string `protobuf:"bytes,1,opt,name=id" json:"id,omitempty"`
	UpdateSeq int64  `protobuf:"varint,2,opt,name=update_seq" json:"update_seq,omitempty"`
	RevsLimit int64  `protobuf:"varint,3,opt,name=revs_limit" json:"revs_limit,omitempty"`
}

func (m *Meta) Reset()         { *m = Meta{} }
func (m *Meta) String() string { return proto.CompactTextString(m) }
func (*Meta) ProtoMessage()    {}

// MustMarshal marshals m, panicking on failure — every message above
// is plain data with no custom validation, so a marshal error can only
// mean a programmer error.
func MustMarshal(m proto.Message) []byte {
	data, err := proto.Marshal(m)
	if err != nil {
		panic("pb: marshal failed: " + err.Error())
	}
	return data
}

// MustUnmarshal unmarshals data into m, panicking on failure.
func MustUnmarshal(data []byte, m proto.Message) {
	if err := proto.Unmarshal(data, m); err != nil {
		panic("pb: unmarshal failed: " + err.Error())
	}
}
