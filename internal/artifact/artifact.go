// Package artifact serializes scan outputs and routes them to files or
// standard output. File writes are atomic: content lands in a temp file in
// the destination directory, is synced, and is renamed into place.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Stdout is the destination value that routes an artifact to standard output.
const Stdout = "stdout"

// Dump serializes v. Pretty mode uses two-space indentation and a trailing
// newline; compact mode is minified with no trailing newline.
func Dump(v any, pretty bool) ([]byte, error) {
	if pretty {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	}
	return json.Marshal(v)
}

// Route resolves a routing flag value to a destination. An empty or "default"
// value selects defaultPath; "stdout" selects standard output; anything else
// is taken as a file path.
func Route(flagValue, defaultPath string) string {
	switch flagValue {
	case "", "default":
		return defaultPath
	default:
		return flagValue
	}
}

// CheckSingleStdout enforces that at most one destination is standard output.
func CheckSingleStdout(dests ...string) error {
	n := 0
	for _, d := range dests {
		if d == Stdout {
			n++
		}
	}
	if n > 1 {
		return fmt.Errorf("at most one output may be routed to stdout per invocation")
	}
	return nil
}

// WriteAtomic writes data to path via a temp file and rename, creating parent
// directories as needed. The temp file is removed on failure.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".marginalia-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename to %s: %w", path, err)
	}
	return nil
}
