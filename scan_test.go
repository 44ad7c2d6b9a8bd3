package marginalia

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/marginalia/internal/events"
)

// scanSource runs one file through the binding state machine and returns the
// produced records.
func scanSource(t *testing.T, rec *events.Recorder, file, src string) []*Record {
	t.Helper()
	inv := &inventory{}
	s := newFileScanner(file, inv, rec)
	require.NoError(t, s.run(strings.NewReader(src)))
	return inv.records
}

func newTestRecorder() *events.Recorder {
	return events.NewRecorder(events.FailWarn)
}

func TestScan_EndToEndExample(t *testing.T) {
	src := "# meta: modules=db,conversation threads=main callers=1 flags=D#X\n" +
		"def foo(x):\n" +
		"    pass\n"
	rec := newTestRecorder()
	records := scanSource(t, rec, "example.py", src)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "foo", r.Symbol)
	assert.Equal(t, SymbolFunction, r.SymbolType)
	assert.Equal(t, "example.py", r.SourceFile)
	assert.Equal(t, 2, r.LineNumber)
	assert.Equal(t, []string{"db", "conversation"}, r.Systems)
	assert.Equal(t, []string{"main"}, r.Threads)
	assert.Equal(t, Callers{Kind: CallersCount, Count: 1}, r.Callers)
	assert.Equal(t, "D#X", r.Flags)
	assert.Equal(t, "fn:example.py:foo:2", r.ID)
	assert.Empty(t, rec.Events())
}

func TestScan_BareDeclarationProducesNothing(t *testing.T) {
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", "def foo():\n    pass\n")
	assert.Empty(t, records)
	assert.Empty(t, rec.Events())
}

func TestScan_NeverBreakPendingWindow(t *testing.T) {
	// Blank lines, decorators, and plain comments between the annotation and
	// its target never close the pending window.
	src := strings.Join([]string{
		"# meta: systems=auth",
		"",
		"# an unrelated prose comment",
		"@app.route('/login')",
		"",
		"def login(request):",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)
	assert.Equal(t, "login", records[0].Symbol)
	assert.Equal(t, 6, records[0].LineNumber)
}

func TestScan_OtherLinesDoNotDisturbPending(t *testing.T) {
	// The never-break policy extends to unrecognized statements: only a
	// drain trigger or end-of-file closes the window.
	src := strings.Join([]string{
		"# meta: systems=auth",
		"return early",
		"def target():",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)
	assert.Equal(t, "target", records[0].Symbol)
}

func TestScan_DocLines(t *testing.T) {
	src := strings.Join([]string{
		"# doc: Validates the session token.",
		"# doc: Returns None on failure.",
		"# meta: systems=auth roles=validator",
		"def check(tok):",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, []string{"Validates the session token.", "Returns None on failure."}, r.Doc)
	require.Len(t, r.Raw, 3) // two doc lines + one meta line, in order
	assert.Equal(t, "# doc: Validates the session token.", r.Raw[0])
}

func TestScan_OrphanDetection(t *testing.T) {
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", "def real():\n    pass\n# meta: systems=x\n")
	assert.Empty(t, records)

	evts := rec.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.KindOrphanNote, evts[0].Kind)
	assert.Equal(t, "a.py", evts[0].Data["file"])
	assert.Equal(t, 3, evts[0].Data["line"])
}

func TestScan_OrphanReportsFirstLineOfBlock(t *testing.T) {
	rec := newTestRecorder()
	scanSource(t, rec, "a.py", "# doc: dangling\n# meta: systems=x\n")
	evts := rec.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, 1, evts[0].Data["line"])
}

func TestScan_AnchorAggregation(t *testing.T) {
	src := strings.Join([]string{
		"# meta: @helper systems=db",
		"def unrelated():",
		"    pass",
		"# doc: second block",
		"# meta: @helper threads=main",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, "helper", r.Symbol)
	assert.Equal(t, SymbolAnchor, r.SymbolType)
	assert.Len(t, r.Raw, 3) // one line from the first block, two from the second
	assert.Equal(t, []string{"db"}, r.Systems)
	assert.Equal(t, []string{"main"}, r.Threads)
	assert.Equal(t, []string{"second block"}, r.Doc)
	assert.Equal(t, 5, r.LineNumber) // refreshed to the latest drain
}

func TestScan_AnchorsAreFileScoped(t *testing.T) {
	rec := newTestRecorder()
	inv := &inventory{}

	s1 := newFileScanner("a.py", inv, rec)
	require.NoError(t, s1.run(strings.NewReader("# meta: @shared systems=a\n")))
	s2 := newFileScanner("b.py", inv, rec)
	require.NoError(t, s2.run(strings.NewReader("# meta: @shared systems=b\n")))

	require.Len(t, inv.records, 2)
	assert.Equal(t, "a.py", inv.records[0].SourceFile)
	assert.Equal(t, "b.py", inv.records[1].SourceFile)
}

func TestScan_FlagsMergeOrderAcrossBlocks(t *testing.T) {
	src := "# meta: @x flags=aab\n# meta: @x flags=cba\n"
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)
	assert.Equal(t, "abc", records[0].Flags)
}

func TestScan_CallersOverwriteWithinPendingNote(t *testing.T) {
	src := strings.Join([]string{
		"# meta: callers=foo,bar",
		"# meta: callers=2",
		"def f():",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)
	assert.Equal(t, Callers{Kind: CallersCount, Count: 2}, records[0].Callers)
}

func TestScan_AnchorCallersOverwriteOnlyWhenDeclared(t *testing.T) {
	// A later block with no callers key leaves the anchor's callers alone;
	// an explicit `callers=` (empty) counts as a wildcard declaration.
	src := strings.Join([]string{
		"# meta: @x callers=3",
		"# meta: @x systems=db",
		"# meta: @y callers=3",
		"# meta: @y callers=",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 2)
	assert.Equal(t, Callers{Kind: CallersCount, Count: 3}, records[0].Callers)
	assert.Equal(t, Callers{Kind: CallersWildcard}, records[1].Callers)
}

func TestScan_AssignTypeLastWriterWins(t *testing.T) {
	src := strings.Join([]string{
		"# meta: assign_type=dict",
		"# meta: assign_type=list",
		"CACHE = {}",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)
	assert.Equal(t, "list", records[0].AssignType)
	assert.Equal(t, SymbolVariable, records[0].SymbolType)
	assert.Equal(t, "var:a.py:CACHE:3", records[0].ID)
}

func TestScan_CustomKeysAccumulate(t *testing.T) {
	src := strings.Join([]string{
		"# meta: writers=scan",
		"# meta: writers=db writers=cli",
		"def f():",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)
	// Within a line the repeated key replaces itself; across lines it extends.
	assert.Equal(t, []string{"scan", "cli"}, records[0].Custom["writers"])
}

func TestScan_ExplicitID(t *testing.T) {
	src := "# meta: #my-id systems=db\ndef f():\n"
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)
	assert.Equal(t, "my-id", records[0].ID)
}

func TestScan_ExplicitIDOverwritesAnchorID(t *testing.T) {
	src := "# meta: @x systems=db\n# meta: @x #better-id\n"
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)
	assert.Equal(t, "better-id", records[0].ID)

	// Without a new explicit id the existing id is preserved.
	src2 := "# meta: @x #keep-me\n# meta: @x systems=db\n"
	records2 := scanSource(t, newTestRecorder(), "b.py", src2)
	require.Len(t, records2, 1)
	assert.Equal(t, "keep-me", records2[0].ID)
}

func TestScan_GrammarErrorAbortsLineOnly(t *testing.T) {
	src := strings.Join([]string{
		"# meta: systems=db",
		"# meta: broken token",
		"def f():",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)

	// The good line still binds; the bad line contributed nothing.
	require.Len(t, records, 1)
	assert.Equal(t, []string{"db"}, records[0].Systems)
	assert.Len(t, records[0].Raw, 1)

	evts := rec.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.KindMetaGrammarError, evts[0].Kind)
	assert.Equal(t, "a.py", evts[0].Data["file"])
	assert.Equal(t, 2, evts[0].Data["line"])
	assert.Equal(t, "broken", evts[0].Data["token"])
}

func TestScan_GrammarErrorDoesNotCreatePending(t *testing.T) {
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", "# meta: nonsense\n")
	assert.Empty(t, records)

	// Only the grammar event — no orphan, because no note was ever created.
	evts := rec.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.KindMetaGrammarError, evts[0].Kind)
}

func TestScan_DeclarationBindsAtDeclarationLine(t *testing.T) {
	src := "# meta: systems=db\n\n\nclass Widget:\n"
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 1)
	assert.Equal(t, 4, records[0].LineNumber)
	assert.Equal(t, "class:a.py:Widget:4", records[0].ID)
}

func TestScan_SameNameDeclarationsStayDistinct(t *testing.T) {
	// Declarations never merge; only anchors aggregate.
	src := strings.Join([]string{
		"# meta: systems=a",
		"def f():",
		"# meta: systems=b",
		"def f():",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"a"}, records[0].Systems)
	assert.Equal(t, []string{"b"}, records[1].Systems)
}

func TestCheckDuplicateIDs(t *testing.T) {
	rec := newTestRecorder()
	records := []*Record{
		{ID: "same"},
		{ID: "other"},
		{ID: "same"},
	}
	checkDuplicateIDs(records, rec)

	evts := rec.Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.KindDuplicateRecordID, evts[0].Kind)
	assert.Equal(t, "same", evts[0].Data["id"])
	assert.Equal(t, 0, evts[0].Data["first"])
	assert.Equal(t, 2, evts[0].Data["second"])
}

func TestScan_MetaAfterDrainStartsFreshNote(t *testing.T) {
	src := strings.Join([]string{
		"# meta: systems=a",
		"def f():",
		"# meta: systems=b",
		"def g():",
	}, "\n")
	rec := newTestRecorder()
	records := scanSource(t, rec, "a.py", src)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"a"}, records[0].Systems)
	assert.Equal(t, []string{"b"}, records[1].Systems)
	assert.Equal(t, "g", records[1].Symbol)
}
