package marginalia

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// SymbolType classifies what a record is bound to.
type SymbolType string

const (
	SymbolFunction SymbolType = "function"
	SymbolClass    SymbolType = "class"
	SymbolVariable SymbolType = "variable"
	SymbolAnchor   SymbolType = "anchor"
)

// idPrefix returns the derived-id prefix for the symbol type, including the
// trailing colon.
func (st SymbolType) idPrefix() string {
	switch st {
	case SymbolFunction:
		return "fn:"
	case SymbolClass:
		return "class:"
	case SymbolVariable:
		return "var:"
	case SymbolAnchor:
		return "anchor:"
	}
	panic(fmt.Sprintf("marginalia: no id prefix for symbol type %q", string(st)))
}

func validSymbolType(st SymbolType) bool {
	switch st {
	case SymbolFunction, SymbolClass, SymbolVariable, SymbolAnchor:
		return true
	}
	return false
}

// CallersKind discriminates the three shapes a callers value can take.
type CallersKind int

const (
	// CallersWildcard means "any callers" — the default when no callers key
	// was supplied, and the explicit value `callers=*`.
	CallersWildcard CallersKind = iota
	// CallersCount is an expected call count (`callers=3`).
	CallersCount
	// CallersList is an ordered list of caller symbols (`callers=foo,bar`).
	// Symbols are never case-normalized or deduplicated.
	CallersList
)

// Callers is the tri-state callers value of a record: wildcard, a
// non-negative count, or an ordered symbol list. The zero value is the
// wildcard.
type Callers struct {
	Kind    CallersKind
	Count   int
	Symbols []string
}

// parseCallers interprets the comma-split values of a callers= token.
// No values or a single "*" is the wildcard; a single all-digit value is a
// count; anything else is a symbol list. Multiple values are always symbols,
// even if they look numeric.
func parseCallers(vals []string) Callers {
	if len(vals) == 0 {
		return Callers{Kind: CallersWildcard}
	}
	if len(vals) == 1 {
		v := vals[0]
		if v == "*" {
			return Callers{Kind: CallersWildcard}
		}
		if n, ok := parseDigits(v); ok {
			return Callers{Kind: CallersCount, Count: n}
		}
		return Callers{Kind: CallersList, Symbols: []string{v}}
	}
	syms := make([]string, len(vals))
	copy(syms, vals)
	return Callers{Kind: CallersList, Symbols: syms}
}

// parseDigits parses a non-empty all-digit string as a non-negative integer.
func parseDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	return n, true
}

// MarshalJSON emits "*", a number, or a string array.
func (c Callers) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CallersWildcard:
		return []byte(`"*"`), nil
	case CallersCount:
		return json.Marshal(c.Count)
	case CallersList:
		syms := c.Symbols
		if syms == nil {
			syms = []string{}
		}
		return json.Marshal(syms)
	}
	return nil, fmt.Errorf("marginalia: bad callers kind %d", c.Kind)
}

// UnmarshalJSON accepts the three wire shapes: "*", a non-negative integer,
// or an array of strings.
func (c *Callers) UnmarshalJSON(data []byte) error {
	d := bytes.TrimSpace(data)
	if len(d) == 0 {
		return fmt.Errorf("callers: empty value")
	}
	switch d[0] {
	case '"':
		var s string
		if err := json.Unmarshal(d, &s); err != nil {
			return fmt.Errorf("callers: %w", err)
		}
		if s != "*" {
			return fmt.Errorf("callers: string value must be %q, got %q", "*", s)
		}
		*c = Callers{Kind: CallersWildcard}
		return nil
	case '[':
		var syms []string
		if err := json.Unmarshal(d, &syms); err != nil {
			return fmt.Errorf("callers: %w", err)
		}
		if syms == nil {
			syms = []string{}
		}
		*c = Callers{Kind: CallersList, Symbols: syms}
		return nil
	default:
		var n int
		if err := json.Unmarshal(d, &n); err != nil {
			return fmt.Errorf("callers: must be %q, integer, or array", "*")
		}
		if n < 0 {
			return fmt.Errorf("callers: count must be non-negative, got %d", n)
		}
		*c = Callers{Kind: CallersCount, Count: n}
		return nil
	}
}

// Record is a finalized annotated symbol. Once drained into the inventory a
// record is immutable, except that an anchor record absorbs later blocks
// targeting the same anchor (raw/doc append, tag sets union, locator
// refresh).
//
// Field order here fixes the serialized field order of the inventory
// artifact.
type Record struct {
	ID         string              `json:"id"`
	Symbol     string              `json:"symbol"`
	SymbolType SymbolType          `json:"symbol_type"`
	SourceFile string              `json:"source_file"`
	LineNumber int                 `json:"line_number"`
	Raw        []string            `json:"raw"`
	Doc        []string            `json:"doc"`
	Systems    []string            `json:"systems"`
	Roles      []string            `json:"roles"`
	Threads    []string            `json:"threads"`
	Callers    Callers             `json:"callers"`
	Flags      string              `json:"flags"`
	AssignType string              `json:"assign_type"`
	Custom     map[string][]string `json:"custom"`
}

// unionLower appends each value to dst lowercased, skipping values already
// present. First-occurrence order is preserved.
func unionLower(dst []string, vals []string) []string {
	for _, v := range vals {
		lv := strings.ToLower(v)
		if !containsString(dst, lv) {
			dst = append(dst, lv)
		}
	}
	return dst
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

// dedupeFlags collapses a packed flag string to its distinct characters in
// first-occurrence order. Case-sensitive.
func dedupeFlags(s string) string {
	var out []rune
	for _, ch := range s {
		if !containsRune(out, ch) {
			out = append(out, ch)
		}
	}
	return string(out)
}

func containsRune(rs []rune, want rune) bool {
	for _, r := range rs {
		if r == want {
			return true
		}
	}
	return false
}
