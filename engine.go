package marginalia

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/jward/marginalia/internal/events"
)

// Default discovery filters. Exclude patterns apply to both file and
// directory names.
var (
	defaultInclude = []string{"*.py", "*.pyw"}
	defaultExclude = []string{".git", "__pycache__", ".venv", "build", "dist"}
)

// Engine orchestrates a scan run: file discovery, the per-file binding state
// machine, halt checkpoints, and the post-scan duplicate-id pass. The scan is
// strictly single-threaded; files are processed one at a time in a
// deterministic lexical order and the inventory is appended to only by the
// active scan.
type Engine struct {
	include    []string
	exclude    []string
	includeSet bool
	excludeSet bool
	policy     events.FailPolicy
	rec        *events.Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithInclude overrides the default include globs (*.py, *.pyw). Patterns
// match against base names, doublestar syntax.
func WithInclude(globs ...string) Option {
	return func(e *Engine) {
		e.include = append([]string(nil), globs...)
		e.includeSet = true
	}
}

// WithExclude overrides the default exclude globs. Matching files and
// directories are pruned from discovery.
func WithExclude(globs ...string) Option {
	return func(e *Engine) {
		e.exclude = append([]string(nil), globs...)
		e.excludeSet = true
	}
}

// WithFailPolicy sets the fail policy of the engine's own recorder. It has no
// effect when a recorder is supplied via WithRecorder; that recorder's policy
// wins.
func WithFailPolicy(policy events.FailPolicy) Option {
	return func(e *Engine) {
		e.policy = policy
	}
}

// WithRecorder supplies the event recorder diagnostics are reported to. The
// recorder's fail policy decides whether error-level diagnostics halt the
// scan at the next file boundary.
func WithRecorder(rec *events.Recorder) Option {
	return func(e *Engine) {
		e.rec = rec
	}
}

// New creates an Engine. Without options it scans *.py/*.pyw files, skips the
// usual build and VCS directories, and records diagnostics under the warn
// policy.
func New(opts ...Option) *Engine {
	e := &Engine{
		include: defaultInclude,
		exclude: defaultExclude,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rec == nil {
		e.rec = events.NewRecorder(e.policy)
	}
	return e
}

// Recorder returns the engine's event recorder.
func (e *Engine) Recorder() *events.Recorder { return e.rec }

// Scan discovers source files under root and runs the binding state machine
// over each, returning the finished inventory in scan order. root may be a
// directory or a single file. Diagnostics go to the recorder; Scan returns an
// error only for conditions that make the run impossible (missing root, bad
// glob patterns, context cancellation).
//
// The halt flag and ctx are checked between files, never mid-line. Unreadable
// files are reported and skipped. After the last file a duplicate-id pass
// flags records sharing an id.
func (e *Engine) Scan(ctx context.Context, root string) ([]*Record, error) {
	if err := e.validateGlobs(); err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		e.rec.Append(events.KindPathDoesNotExist, map[string]any{"path": root})
		return nil, fmt.Errorf("scan path does not exist: %s", root)
	}

	var base string
	var paths []string
	if info.IsDir() {
		base = root
		paths = e.discover(root)
	} else {
		// Globs only make sense against a directory tree.
		if e.includeSet {
			e.rec.Append(events.KindCannotGlobAFile, map[string]any{"path": root})
		}
		if e.excludeSet {
			e.rec.Append(events.KindCannotAntiglobAFile, map[string]any{"path": root})
		}
		base = filepath.Dir(root)
		paths = []string{root}
	}

	inv := &inventory{}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.scanFile(inv, base, p)
		if e.rec.Halted() {
			break
		}
	}

	records := inv.records
	if records == nil {
		records = []*Record{}
	}
	checkDuplicateIDs(records, e.rec)
	return records, nil
}

func (e *Engine) validateGlobs() error {
	for _, pat := range append(append([]string(nil), e.include...), e.exclude...) {
		if !doublestar.ValidatePattern(pat) {
			e.rec.Append(events.KindBadGlobPattern, map[string]any{"pattern": pat})
			return fmt.Errorf("bad glob pattern: %s", pat)
		}
	}
	return nil
}

// discover walks root lexically and returns the matching file paths in a
// deterministic order. Exclude patterns prune directories and files by base
// name; include patterns select files.
func (e *Engine) discover(root string) []string {
	var paths []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			e.rec.Append(events.KindIOReadError, map[string]any{"path": path, "detail": err.Error()})
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && matchAny(e.exclude, name) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchAny(e.exclude, name) {
			return nil
		}
		if matchAny(e.include, name) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths
}

func matchAny(patterns []string, name string) bool {
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// scanFile opens one file, fully consumes it through a fresh fileScanner, and
// closes it before the next file begins. Accumulator state never crosses
// files.
func (e *Engine) scanFile(inv *inventory, base, path string) {
	f, err := os.Open(path)
	if err != nil {
		e.rec.Append(events.KindIOReadError, map[string]any{"path": path, "detail": err.Error()})
		return
	}
	defer f.Close()

	sc := newFileScanner(relSource(base, path), inv, e.rec)
	if err := sc.run(f); err != nil {
		e.rec.Append(events.KindIOReadError, map[string]any{"path": path, "detail": err.Error()})
	}
}

// relSource renders a scanned path relative to the scan root, always
// slash-separated so artifacts are byte-identical across platforms.
func relSource(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	return strings.TrimPrefix(rel, "./")
}
