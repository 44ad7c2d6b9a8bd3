// Package events models every user-facing message and significant processing
// outcome as a structured event drawn from a controlled vocabulary. The
// vocabulary lives in the embedded event_kinds.json catalog; each kind fixes
// a severity level, an error class for exit-code computation, tags, and a
// message template with {ctx:name} placeholders.
package events

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

//go:embed event_kinds.json
var kindsJSON []byte

// Level is an event severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// ErrClass buckets error-level events for exit-code computation.
type ErrClass string

const (
	ErrNone     ErrClass = "none"
	ErrUsage    ErrClass = "usage"
	ErrSchema   ErrClass = "schema"
	ErrIO       ErrClass = "io"
	ErrInternal ErrClass = "internal"
)

// Catalog kind names. Appending an unknown kind is a programmer error.
const (
	KindPathDoesNotExist     = "path-does-not-exist"
	KindCannotGlobAFile      = "cannot-glob-a-file"
	KindCannotAntiglobAFile  = "cannot-antiglob-a-file"
	KindBadGlobPattern       = "bad-glob-pattern"
	KindMetaGrammarError     = "meta-grammar-error"
	KindOrphanNote           = "orphan-note"
	KindDuplicateRecordID    = "duplicate-record-id"
	KindInventorySchemaError = "inventory-schema-error"
	KindConfigError          = "config-error"
	KindUsageError           = "usage-error"
	KindIOReadError          = "io-read-error"
	KindIOWriteError         = "io-write-error"
	KindDBError              = "db-error"
	KindInternalError        = "internal-error"
)

// kindSpec is one catalog entry from event_kinds.json.
type kindSpec struct {
	Level Level    `json:"level"`
	Err   ErrClass `json:"err"`
	Tags  []string `json:"tags"`
	Msg   string   `json:"msg-template"`
}

var catalog = loadCatalog()

func loadCatalog() map[string]kindSpec {
	m := make(map[string]kindSpec)
	if err := json.Unmarshal(kindsJSON, &m); err != nil {
		panic(fmt.Sprintf("events: bad embedded event_kinds.json: %v", err))
	}
	return m
}

// Event is one recorded occurrence of a catalog kind.
type Event struct {
	Level Level          `json:"level"`
	Kind  string         `json:"kind"`
	Tags  []string       `json:"tags"`
	Err   ErrClass       `json:"err"`
	Msg   string         `json:"msg"`
	Data  map[string]any `json:"data"`
}

// FailPolicy decides whether error-level events halt the run.
type FailPolicy string

const (
	// FailWarn reports errors but lets the run finish.
	FailWarn FailPolicy = "warn"
	// FailHalt requests a stop at the next checkpoint after any error-level
	// event.
	FailHalt FailPolicy = "halt"
)

// Recorder accumulates events for one invocation and tracks the halt flag.
// It is the single collaborator the scan core reports diagnostics to.
type Recorder struct {
	policy FailPolicy
	events []Event
	stop   bool
}

func NewRecorder(policy FailPolicy) *Recorder {
	if policy == "" {
		policy = FailWarn
	}
	return &Recorder{policy: policy}
}

// Policy returns the recorder's fail policy.
func (r *Recorder) Policy() FailPolicy { return r.policy }

// Append records an event of the given kind with template context. Unknown
// kinds are programmer errors and panic. Under the halt policy, an
// error-level event raises the stop flag; callers observe it at file
// boundaries and end of run, never mid-line.
func (r *Recorder) Append(kind string, ctx map[string]any) {
	spec, ok := catalog[kind]
	if !ok {
		panic(fmt.Sprintf("events: unknown event kind %q", kind))
	}
	if ctx == nil {
		ctx = map[string]any{}
	}
	r.events = append(r.events, Event{
		Level: spec.Level,
		Kind:  kind,
		Tags:  append([]string(nil), spec.Tags...),
		Err:   spec.Err,
		Msg:   resolveTokens(spec.Msg, ctx),
		Data:  ctx,
	})
	if spec.Level == LevelError && r.policy == FailHalt {
		r.stop = true
	}
}

// Events returns all recorded events in order.
func (r *Recorder) Events() []Event { return r.events }

// Halted reports whether a halt has been requested.
func (r *Recorder) Halted() bool { return r.stop }

// HasErrors reports whether any error-level event was recorded.
func (r *Recorder) HasErrors() bool {
	for _, e := range r.events {
		if e.Level == LevelError {
			return true
		}
	}
	return false
}

// ExitCode computes the process exit code from the recorded events and the
// fail policy.
//
// Contract:
//
//	0 = success (nothing above warning level)
//	1 = usage or argument error
//	2 = parse or schema validation error
//	3 = failure policy halt condition triggered
//	4 = filesystem or IO error
//	5 = internal error
func (r *Recorder) ExitCode() int {
	if r.stop && r.policy == FailHalt {
		return 3
	}

	var hasError, hasUsage, hasSchema, hasIO, hasInternal bool
	for _, e := range r.events {
		if e.Level != LevelError {
			continue
		}
		hasError = true
		switch e.Err {
		case ErrUsage:
			hasUsage = true
		case ErrSchema:
			hasSchema = true
		case ErrIO:
			hasIO = true
		case ErrInternal:
			hasInternal = true
		}
	}

	switch {
	case hasInternal:
		return 5
	case hasUsage:
		return 1
	case hasSchema:
		return 2
	case hasIO:
		return 4
	case hasError && r.policy == FailWarn:
		return 0
	case hasError && r.policy == FailHalt:
		return 3
	}
	return 0
}

// PresentationLines renders the recorded events as human-readable summary
// lines. Multi-line messages get continuation indentation under their prefix.
func (r *Recorder) PresentationLines() []string {
	var out []string
	for _, e := range r.events {
		var pfx string
		switch e.Level {
		case LevelInfo:
			pfx = "[info]"
		case LevelWarning:
			pfx = "[warn]"
		case LevelError:
			pfx = "[err]"
		default:
			pfx = "[?]"
		}
		indent := strings.Repeat(" ", len(pfx)+1)
		for i, line := range strings.Split(e.Msg, "\n") {
			if i == 0 {
				out = append(out, pfx+" "+line)
			} else {
				out = append(out, indent+line)
			}
		}
	}
	return out
}

var ctxTokenRe = regexp.MustCompile(`\{ctx:([A-Za-z_][A-Za-z0-9_]*)\}`)

// resolveTokens substitutes {ctx:name} placeholders from the context map.
// Missing values resolve to the empty string.
func resolveTokens(tmpl string, ctx map[string]any) string {
	return ctxTokenRe.ReplaceAllStringFunc(tmpl, func(tok string) string {
		name := ctxTokenRe.FindStringSubmatch(tok)[1]
		v, ok := ctx[name]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	})
}
