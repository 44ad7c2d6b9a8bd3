package marginalia

import (
	"bufio"
	"io"

	"github.com/jward/marginalia/internal/events"
)

// inventory is the shared append-only record list for one scan run.
type inventory struct {
	records []*Record
}

func (inv *inventory) append(r *Record) {
	inv.records = append(inv.records, r)
}

// findAnchor searches most-recently-appended first for an anchor record with
// the given name in the same file. Linear reverse scan; fine at the scale a
// single run targets.
func (inv *inventory) findAnchor(sourceFile, name string) *Record {
	for i := len(inv.records) - 1; i >= 0; i-- {
		r := inv.records[i]
		if r.SymbolType == SymbolAnchor && r.SourceFile == sourceFile && r.Symbol == name {
			return r
		}
	}
	return nil
}

// fileScanner is the per-file binding state machine. It holds at most one
// pending note, absorbs meta/doc lines into it, and drains it into the shared
// inventory when a binding event occurs. All cursor state is explicit here —
// nothing leaks between files.
type fileScanner struct {
	sourceFile string
	inv        *inventory
	rec        *events.Recorder

	pending *note
	lineNum int
}

func newFileScanner(sourceFile string, inv *inventory, rec *events.Recorder) *fileScanner {
	return &fileScanner{sourceFile: sourceFile, inv: inv, rec: rec}
}

// run streams the file through the state machine, one line at a time, in
// order. A note still pending at end of file is reported as an orphan and
// discarded.
func (s *fileScanner) run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		s.lineNum++
		s.processLine(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return err
	}
	s.finish()
	return nil
}

func (s *fileScanner) processLine(line string) {
	switch classifyLine(line) {
	case lineDoc:
		payload, _ := docPayload(line)
		n := s.ensurePending()
		n.raw = append(n.raw, line)
		n.doc = append(n.doc, payload)

	case lineMeta:
		// Parse before touching the pending note: a grammar error aborts
		// this line only and must not corrupt accumulated state.
		p, err := parseMetaLine(line)
		if err != nil {
			detail := err.Error()
			token := ""
			if ge, ok := err.(*GrammarError); ok {
				token = ge.Token
			}
			s.rec.Append(events.KindMetaGrammarError, map[string]any{
				"file":   s.sourceFile,
				"line":   s.lineNum,
				"token":  token,
				"detail": detail,
			})
			return
		}
		n := s.ensurePending()
		n.raw = append(n.raw, line)
		n.applyMeta(p)
		if p.anchor != "" {
			s.drainToAnchor(p.anchor)
			s.pending = nil
		}

	case lineDeclaration:
		// A bare declaration with no preceding annotation is not an error;
		// it just produces no record.
		if s.pending == nil {
			return
		}
		symbol, st, _ := detectDeclaration(line)
		s.drainToSymbol(symbol, st)
		s.pending = nil

	case lineSkippable, lineOther:
		// Never closes the pending window: annotation blocks may be
		// separated from their target by blanks, decorators, or prose.
	}
}

func (s *fileScanner) ensurePending() *note {
	if s.pending == nil {
		s.pending = newNote(s.lineNum)
	}
	return s.pending
}

// drainToSymbol finalizes the pending note as a fresh record bound to a
// declaration. Declarations never merge into prior records of the same name;
// only explicit anchors aggregate.
func (s *fileScanner) drainToSymbol(symbol string, st SymbolType) {
	s.inv.append(s.pending.finalize(symbol, st, s.sourceFile, s.lineNum))
}

// drainToAnchor merges the pending note into an existing anchor record for
// (file, name), or creates one.
func (s *fileScanner) drainToAnchor(name string) {
	n := s.pending
	existing := s.inv.findAnchor(s.sourceFile, name)
	if existing == nil {
		s.inv.append(n.finalize(name, SymbolAnchor, s.sourceFile, s.lineNum))
		return
	}

	existing.Raw = append(existing.Raw, n.raw...)
	existing.Doc = append(existing.Doc, n.doc...)
	existing.Systems = unionLower(existing.Systems, n.systems)
	existing.Roles = unionLower(existing.Roles, n.roles)
	existing.Threads = unionLower(existing.Threads, n.threads)
	if n.callersSet {
		existing.Callers = n.callers
	}
	existing.Flags = dedupeFlags(existing.Flags + n.flags)
	if n.assignType != "" {
		existing.AssignType = n.assignType
	}
	for k, vals := range n.custom {
		existing.Custom[k] = append(existing.Custom[k], vals...)
	}

	// The anchor keeps its identity but its locator follows the latest drain.
	existing.LineNumber = s.lineNum
	if n.id != "" {
		existing.ID = n.id
	} else if existing.ID == "" {
		existing.ID = deriveID(SymbolAnchor, s.sourceFile, name, s.lineNum)
	}
}

// finish reports a still-pending note as an orphan. Orphans never reach the
// inventory.
func (s *fileScanner) finish() {
	if s.pending == nil {
		return
	}
	s.rec.Append(events.KindOrphanNote, map[string]any{
		"file": s.sourceFile,
		"line": s.pending.firstLine,
	})
	s.pending = nil
}
