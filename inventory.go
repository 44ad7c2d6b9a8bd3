package marginalia

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// recordFields is the exact serialized field set of a record, used to reject
// inventories with missing or extra fields.
var recordFields = []string{
	"id", "symbol", "symbol_type", "source_file", "line_number",
	"raw", "doc", "systems", "roles", "threads",
	"callers", "flags", "assign_type", "custom",
}

// DecodeInventory strictly parses a serialized inventory artifact back into
// records. Every item must carry exactly the record fields, a known
// symbol_type, a positive line number, and a well-formed callers value.
// Duplicate ids are tolerated here; the duplicate-id pass is a scan-time
// diagnostic, not a load-time rejection.
func DecodeInventory(data []byte) ([]*Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("inventory must be a JSON array: %w", err)
	}

	records := make([]*Record, 0, len(items))
	for i, item := range items {
		r, err := decodeRecord(item)
		if err != nil {
			return nil, fmt.Errorf("inventory item %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func decodeRecord(item json.RawMessage) (*Record, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil {
		return nil, fmt.Errorf("must be an object: %w", err)
	}
	for _, k := range recordFields {
		if _, ok := fields[k]; !ok {
			return nil, fmt.Errorf("missing field %q", k)
		}
	}
	for k := range fields {
		if !containsString(recordFields, k) {
			return nil, fmt.Errorf("extra field %q", k)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(item))
	dec.DisallowUnknownFields()
	var r Record
	if err := dec.Decode(&r); err != nil {
		return nil, err
	}

	if !validSymbolType(r.SymbolType) {
		return nil, fmt.Errorf("bad symbol_type %q", string(r.SymbolType))
	}
	if r.LineNumber <= 0 {
		return nil, fmt.Errorf("line_number must be positive, got %d", r.LineNumber)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("id must be non-empty")
	}

	// Normalize absent containers so re-serialization stays canonical.
	r.Raw = emptyIfNil(r.Raw)
	r.Doc = emptyIfNil(r.Doc)
	r.Systems = emptyIfNil(r.Systems)
	r.Roles = emptyIfNil(r.Roles)
	r.Threads = emptyIfNil(r.Threads)
	if r.Custom == nil {
		r.Custom = make(map[string][]string)
	}
	return &r, nil
}
