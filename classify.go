package marginalia

import (
	"regexp"
	"strings"
)

// lineClass is the single classification every scanned line receives.
type lineClass int

const (
	lineOther lineClass = iota
	lineDoc
	lineMeta
	lineSkippable
	lineDeclaration
)

// Bindable declaration patterns, in priority order: function, class, simple
// assignment. First match wins.
var (
	defRe    = regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
	classRe  = regexp.MustCompile(`^\s*class\s+([A-Za-z_][A-Za-z0-9_]*)\s*[(:]`)
	assignRe = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=`)
)

// docMarker is the exact literal doc-line prefix, optionally followed by one
// space and free text.
const docMarker = "# doc:"

// detectDeclaration classifies a line as a bindable declaration, returning
// the symbol name and kind.
func detectDeclaration(line string) (string, SymbolType, bool) {
	if m := defRe.FindStringSubmatch(line); m != nil {
		return m[1], SymbolFunction, true
	}
	if m := classRe.FindStringSubmatch(line); m != nil {
		return m[1], SymbolClass, true
	}
	if m := assignRe.FindStringSubmatch(line); m != nil {
		return m[1], SymbolVariable, true
	}
	return "", "", false
}

// docPayload returns the doc text of a doc line: everything after the marker
// with at most one leading space stripped. The marker may be indented.
func docPayload(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(trimmed, docMarker) {
		return "", false
	}
	payload := trimmed[len(docMarker):]
	payload = strings.TrimPrefix(payload, " ")
	return payload, true
}

// classifyLine assigns exactly one class to a line. Doc and meta markers win
// over the generic comment rule; blank lines, decorators, and ordinary
// comments are skippable and never disturb a pending note.
func classifyLine(line string) lineClass {
	if _, ok := docPayload(line); ok {
		return lineDoc
	}
	if isMetaLine(line) {
		return lineMeta
	}
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "@") || strings.HasPrefix(trimmed, "#") {
		return lineSkippable
	}
	if _, _, ok := detectDeclaration(line); ok {
		return lineDeclaration
	}
	return lineOther
}
