package marginalia

// note is an item-under-construction: the mutable accumulator that absorbs
// meta and doc lines until a drain event converts it into a Record. At most
// one note is pending per file.
type note struct {
	id        string
	firstLine int

	raw []string
	doc []string

	systems []string
	roles   []string
	threads []string

	callers    Callers
	callersSet bool
	flags      string
	assignType string

	custom map[string][]string
}

func newNote(firstLine int) *note {
	return &note{
		firstLine: firstLine,
		custom:    make(map[string][]string),
	}
}

// applyMeta merges one parsed meta line into the pending note.
//
// Cross-line rules: systems/roles/threads union (lowercased, first occurrence
// wins); callers and flags overwrite the pending value when the line supplies
// the key at all; assign_type is last-writer-wins; custom keys extend and are
// never overwritten. An explicit id sets or replaces the pending id.
func (n *note) applyMeta(p *parsedMeta) {
	if vals, ok := p.reserved["systems"]; ok {
		n.systems = unionLower(n.systems, vals)
	}
	if vals, ok := p.reserved["roles"]; ok {
		n.roles = unionLower(n.roles, vals)
	}
	if vals, ok := p.reserved["threads"]; ok {
		n.threads = unionLower(n.threads, vals)
	}
	if vals, ok := p.reserved["callers"]; ok {
		n.callers = parseCallers(vals)
		n.callersSet = true
	}
	if vals, ok := p.reserved["flags"]; ok {
		var packed string
		for _, v := range vals {
			packed += v
		}
		n.flags = dedupeFlags(packed)
	}
	if vals, ok := p.reserved["assign_type"]; ok && len(vals) > 0 {
		n.assignType = vals[len(vals)-1]
	}
	for k, vals := range p.custom {
		n.custom[k] = append(n.custom[k], vals...)
	}
	if p.id != "" {
		n.id = p.id
	}
}

// finalize converts the note into a Record bound at the given locator and
// resolves its id. The locator fields are fixed from this point on.
func (n *note) finalize(symbol string, st SymbolType, sourceFile string, lineNumber int) *Record {
	if symbol == "" || sourceFile == "" || lineNumber <= 0 {
		panic("marginalia: finalize without a complete locator")
	}
	r := &Record{
		ID:         n.id,
		Symbol:     symbol,
		SymbolType: st,
		SourceFile: sourceFile,
		LineNumber: lineNumber,
		Raw:        emptyIfNil(n.raw),
		Doc:        emptyIfNil(n.doc),
		Systems:    emptyIfNil(n.systems),
		Roles:      emptyIfNil(n.roles),
		Threads:    emptyIfNil(n.threads),
		Callers:    n.callers,
		Flags:      n.flags,
		AssignType: n.assignType,
		Custom:     n.custom,
	}
	if r.Custom == nil {
		r.Custom = make(map[string][]string)
	}
	if r.ID == "" {
		r.ID = deriveID(st, sourceFile, symbol, lineNumber)
	}
	return r
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}
