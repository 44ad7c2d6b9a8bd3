package marginalia

import (
	"strconv"

	"github.com/jward/marginalia/internal/events"
)

// deriveID builds the deterministic fallback id for a record that never
// received an explicit #id token:
//
//	<prefix><source_file>:<symbol>:<line_number>
//
// where prefix is fn: / class: / var: / anchor: by symbol type.
func deriveID(st SymbolType, sourceFile, symbol string, lineNumber int) string {
	return st.idPrefix() + sourceFile + ":" + symbol + ":" + strconv.Itoa(lineNumber)
}

// checkDuplicateIDs walks the finished inventory and emits one diagnostic per
// record whose id was already taken by an earlier record. Records are flagged,
// never removed.
func checkDuplicateIDs(records []*Record, rec *events.Recorder) {
	seen := make(map[string]int, len(records))
	for i, r := range records {
		if first, ok := seen[r.ID]; ok {
			rec.Append(events.KindDuplicateRecordID, map[string]any{
				"id":     r.ID,
				"first":  first,
				"second": i,
			})
			continue
		}
		seen[r.ID] = i
	}
}
