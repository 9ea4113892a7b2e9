package store

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Collection names a keyed set of records.
type Collection string

const (
	Users                Collection = "users"
	Passengers           Collection = "passengers"
	Conductors           Collection = "conductors"
	Trips                Collection = "trips"
	Signatures           Collection = "signatures"
	ConductorCredentials Collection = "conductorCredentials"
)

// All lists every collection in creation order.
var All = []Collection{Users, Passengers, Conductors, Trips, Signatures, ConductorCredentials}

// ParseCollection resolves a collection by name.
func ParseCollection(name string) (Collection, error) {
	name = strings.TrimSpace(name)
	for _, c := range All {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown collection %q", name)
}

// Index declares a secondary key extracted from a JSON field.
type Index struct {
	Field  string // JSON path inside the document
	Column string
	Unique bool
	Time   bool // normalize RFC 3339 values so they sort as text
}

func (ix Index) name(table string) string {
	if ix.Unique {
		return "ux_" + table + "_" + ix.Column
	}
	return "ix_" + table + "_" + ix.Column
}

// Schema is the resolved layout of one collection at the current version.
type Schema struct {
	Collection Collection
	Table      string
	Indexes    []Index
}

func (sc Schema) index(field string) (Index, bool) {
	for _, ix := range sc.Indexes {
		if ix.Field == field {
			return ix, true
		}
	}
	return Index{}, false
}

func (sc Schema) columns() []string {
	cols := make([]string, 0, len(sc.Indexes))
	for _, ix := range sc.Indexes {
		cols = append(cols, ix.Column)
	}
	return cols
}

// Document is a JSON object with a string "id" member.
type Document []byte

// ID returns the document's primary key.
func (d Document) ID() string {
	return gjson.GetBytes(d, "id").String()
}

// MarshalJSON embeds the document verbatim.
func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

func (d *Document) UnmarshalJSON(b []byte) error {
	*d = append((*d)[:0], b...)
	return nil
}

func validate(coll Collection, doc Document) (string, error) {
	if !gjson.ValidBytes(doc) {
		return "", fmt.Errorf("%s: document is not valid JSON", coll)
	}
	root := gjson.ParseBytes(doc)
	if !root.IsObject() {
		return "", fmt.Errorf("%s: document must be a JSON object", coll)
	}
	id := root.Get("id")
	if id.Type != gjson.String || strings.TrimSpace(id.Str) == "" {
		return "", fmt.Errorf("%s: document requires a string id", coll)
	}
	return id.Str, nil
}

// JoinArray renders documents as one JSON array.
func JoinArray(docs []Document) []byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, d := range docs {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(d)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

// SplitArray parses a JSON array snapshot back into documents.
func SplitArray(raw []byte) ([]Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("snapshot is not valid JSON")
	}
	arr := gjson.ParseBytes(raw)
	if !arr.IsArray() {
		return nil, fmt.Errorf("snapshot is not a JSON array")
	}
	out := []Document{}
	arr.ForEach(func(_, v gjson.Result) bool {
		out = append(out, Document(v.Raw))
		return true
	})
	return out, nil
}

// SortByID orders documents by id; used where callers need set comparisons.
func SortByID(docs []Document) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID() < docs[j].ID() })
}
