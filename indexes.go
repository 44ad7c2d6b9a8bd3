package marginalia

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// IndexNames lists the five index keys in their canonical emission order.
var IndexNames = []string{"by-symbol", "by-file", "by-module", "by-thread", "by-flag"}

// Indexes is the derived grouping of an inventory by key dimensions. It is a
// pure projection: building it never mutates the input records, and the same
// input yields byte-identical serialized output.
type Indexes struct {
	BySymbol *RecordIndex
	ByFile   *BucketIndex
	ByModule *BucketIndex
	ByThread *BucketIndex
	ByFlag   *BucketIndex
}

// BuildIndexes projects a finished record list into the five indexes.
//
// Records are first sorted by (symbol lowercased, source_file lowercased,
// line_number); that order is the basis for every bucket's contents and for
// by-symbol disambiguation.
func BuildIndexes(records []*Record) *Indexes {
	sorted := make([]*Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if as, bs := strings.ToLower(a.Symbol), strings.ToLower(b.Symbol); as != bs {
			return as < bs
		}
		if af, bf := strings.ToLower(a.SourceFile), strings.ToLower(b.SourceFile); af != bf {
			return af < bf
		}
		return a.LineNumber < b.LineNumber
	})

	bySymbol := newRecordIndex()
	counts := make(map[string]int)
	for _, r := range sorted {
		counts[r.Symbol]++
		key := r.Symbol
		if n := counts[r.Symbol]; n > 1 {
			key = fmt.Sprintf("%s (%d)", r.Symbol, n)
		}
		bySymbol.add(key, r)
	}

	byFile := newBucketIndex()
	for _, r := range sorted {
		byFile.add(r.SourceFile, r)
	}

	byModule := newBucketIndex()
	for _, r := range sorted {
		for _, v := range r.Systems {
			byModule.add(v, r)
		}
	}

	byThread := newBucketIndex()
	for _, r := range sorted {
		for _, v := range r.Threads {
			byThread.add(v, r)
		}
	}

	byFlag := newBucketIndex()
	for _, r := range sorted {
		for _, ch := range r.Flags {
			byFlag.add(string(ch), r)
		}
	}

	bySymbol.sortKeys()
	byFile.sortKeys()
	byModule.sortKeys()
	byThread.sortKeys()
	byFlag.sortKeys()

	return &Indexes{
		BySymbol: bySymbol,
		ByFile:   byFile,
		ByModule: byModule,
		ByThread: byThread,
		ByFlag:   byFlag,
	}
}

// MarshalJSON emits the full five-key index artifact.
func (ix *Indexes) MarshalJSON() ([]byte, error) {
	return ix.marshalOnly(nil)
}

// Only returns a marshaler restricted to the named indexes, preserving
// canonical key order. Unknown names are rejected.
func (ix *Indexes) Only(names []string) (json.Marshaler, error) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if !containsString(IndexNames, n) {
			return nil, fmt.Errorf("unknown index name %q", n)
		}
		want[n] = true
	}
	return &indexView{ix: ix, want: want}, nil
}

type indexView struct {
	ix   *Indexes
	want map[string]bool
}

func (v *indexView) MarshalJSON() ([]byte, error) {
	return v.ix.marshalOnly(v.want)
}

func (ix *Indexes) marshalOnly(want map[string]bool) ([]byte, error) {
	views := map[string]json.Marshaler{
		"by-symbol": ix.BySymbol,
		"by-file":   ix.ByFile,
		"by-module": ix.ByModule,
		"by-thread": ix.ByThread,
		"by-flag":   ix.ByFlag,
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, name := range IndexNames {
		if want != nil && !want[name] {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		writeJSONKey(&buf, name)
		b, err := views[name].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// RecordIndex is an insertion-ordered mapping from disambiguated symbol key
// to a single record. Serialization follows the stored key order.
type RecordIndex struct {
	keys []string
	m    map[string]*Record
}

func newRecordIndex() *RecordIndex {
	return &RecordIndex{m: make(map[string]*Record)}
}

func (ix *RecordIndex) add(key string, r *Record) {
	if _, ok := ix.m[key]; !ok {
		ix.keys = append(ix.keys, key)
	}
	ix.m[key] = r
}

// Keys returns the index keys in emission order.
func (ix *RecordIndex) Keys() []string { return ix.keys }

// Get looks up a record by its (possibly disambiguated) key.
func (ix *RecordIndex) Get(key string) (*Record, bool) {
	r, ok := ix.m[key]
	return r, ok
}

// Len returns the number of keys.
func (ix *RecordIndex) Len() int { return len(ix.keys) }

func (ix *RecordIndex) sortKeys() { sortKeysFold(ix.keys) }

func (ix *RecordIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range ix.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONKey(&buf, k)
		b, err := json.Marshal(ix.m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// BucketIndex is an insertion-ordered mapping from bucket key to the records
// in that bucket. Records keep the global sorted order within each bucket.
type BucketIndex struct {
	keys []string
	m    map[string][]*Record
}

func newBucketIndex() *BucketIndex {
	return &BucketIndex{m: make(map[string][]*Record)}
}

func (ix *BucketIndex) add(key string, r *Record) {
	if _, ok := ix.m[key]; !ok {
		ix.keys = append(ix.keys, key)
	}
	ix.m[key] = append(ix.m[key], r)
}

// Keys returns the bucket keys in emission order.
func (ix *BucketIndex) Keys() []string { return ix.keys }

// Get returns the records in a bucket.
func (ix *BucketIndex) Get(key string) []*Record { return ix.m[key] }

// Len returns the number of buckets.
func (ix *BucketIndex) Len() int { return len(ix.keys) }

func (ix *BucketIndex) sortKeys() { sortKeysFold(ix.keys) }

func (ix *BucketIndex) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range ix.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONKey(&buf, k)
		b, err := json.Marshal(ix.m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// sortKeysFold orders keys case-insensitively, breaking case-insensitive ties
// by byte order so the result is total and deterministic.
func sortKeysFold(keys []string) {
	sort.Slice(keys, func(i, j int) bool {
		li, lj := strings.ToLower(keys[i]), strings.ToLower(keys[j])
		if li != lj {
			return li < lj
		}
		return keys[i] < keys[j]
	})
}

func writeJSONKey(buf *bytes.Buffer, key string) {
	b, _ := json.Marshal(key)
	buf.Write(b)
	buf.WriteByte(':')
}
