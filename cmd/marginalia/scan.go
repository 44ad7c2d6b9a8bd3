package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/marginalia"
	"github.com/jward/marginalia/internal/artifact"
	"github.com/jward/marginalia/internal/config"
	"github.com/jward/marginalia/internal/events"
	"github.com/jward/marginalia/internal/store"
)

var (
	flagScanInventory   string
	flagScanIndexes     string
	flagScanPretty      bool
	flagScanCompact     bool
	flagScanFiles       []string
	flagScanExclude     []string
	flagScanIndexesOnly []string
	flagScanFail        string
	flagScanDB          string
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Scan source files for meta comments",
	Long:  "Scans a file or directory tree for marginalia meta comments and emits the inventory and index artifacts.",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&flagScanInventory, "inventory", "", "emit the inventory artifact; optional value is 'stdout' or a file path")
	scanCmd.Flags().Lookup("inventory").NoOptDefVal = "default"
	scanCmd.Flags().StringVar(&flagScanIndexes, "indexes", "", "emit the indexes artifact; optional value is 'stdout' or a file path")
	scanCmd.Flags().Lookup("indexes").NoOptDefVal = "default"
	scanCmd.Flags().BoolVar(&flagScanPretty, "pretty", false, "pretty-print JSON output")
	scanCmd.Flags().BoolVar(&flagScanCompact, "compact", false, "minified JSON output")
	scanCmd.Flags().StringArrayVar(&flagScanFiles, "files", nil, "glob pattern restricting which files are scanned (repeatable)")
	scanCmd.Flags().StringArrayVar(&flagScanExclude, "exclude", nil, "glob pattern excluding files or directories (repeatable)")
	scanCmd.Flags().StringSliceVar(&flagScanIndexesOnly, "indexes-only", nil, "restrict the emitted indexes to the named views")
	scanCmd.Flags().StringVar(&flagScanFail, "fail", "", "failure policy: warn or halt (default warn)")
	scanCmd.Flags().StringVar(&flagScanDB, "db", "", "also persist the inventory to a SQLite database at this path")
}

func runScan(cmd *cobra.Command, args []string) error {
	if flagScanPretty && flagScanCompact {
		return fmt.Errorf("cannot combine --pretty and --compact")
	}

	root := args[0]

	// Project config applies only when scanning a directory tree.
	var cfg *config.Config
	if info, err := os.Stat(root); err == nil && info.IsDir() {
		cfg, err = config.Load(root)
		if err != nil {
			return err
		}
	}

	policy, err := resolveFailPolicy(cfg)
	if err != nil {
		return err
	}
	rec := events.NewRecorder(policy)

	opts := []marginalia.Option{marginalia.WithRecorder(rec)}
	if include := firstNonEmpty(flagScanFiles, cfgInclude(cfg)); include != nil {
		opts = append(opts, marginalia.WithInclude(include...))
	}
	if exclude := firstNonEmpty(flagScanExclude, cfgExclude(cfg)); exclude != nil {
		opts = append(opts, marginalia.WithExclude(exclude...))
	}

	eng := marginalia.New(opts...)
	records, err := eng.Scan(cmd.Context(), root)
	if err != nil {
		if ferr := finish(cmd, rec); ferr != nil {
			return ferr
		}
		return err
	}

	if !rec.Halted() {
		if err := emitScanArtifacts(cmd, root, records, rec); err != nil {
			return err
		}
		if flagScanDB != "" {
			persistInventory(flagScanDB, records, rec)
		}
	}

	return finish(cmd, rec)
}

func resolveFailPolicy(cfg *config.Config) (events.FailPolicy, error) {
	policy := events.FailWarn
	if cfg != nil && cfg.Fail != "" {
		policy = events.FailPolicy(cfg.Fail)
	}
	switch flagScanFail {
	case "":
	case "warn", "halt":
		policy = events.FailPolicy(flagScanFail)
	default:
		return "", fmt.Errorf("--fail must be 'warn' or 'halt', got %q", flagScanFail)
	}
	return policy, nil
}

func cfgInclude(cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}
	return cfg.Include
}

func cfgExclude(cfg *config.Config) []string {
	if cfg == nil {
		return nil
	}
	return cfg.Exclude
}

func firstNonEmpty(a, b []string) []string {
	if len(a) > 0 {
		return a
	}
	if len(b) > 0 {
		return b
	}
	return nil
}

// emitScanArtifacts routes and writes the inventory and indexes artifacts.
// With neither routing flag given, both go to their default paths under the
// scan root; otherwise only the requested artifacts are emitted.
func emitScanArtifacts(cmd *cobra.Command, root string, records []*marginalia.Record, rec *events.Recorder) error {
	invSpecified := cmd.Flags().Changed("inventory")
	idxSpecified := cmd.Flags().Changed("indexes")
	emitInv := invSpecified || !idxSpecified
	emitIdx := idxSpecified || !invSpecified

	baseDir := root
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		baseDir = filepath.Dir(root)
	}

	var invDest, idxDest string
	if emitInv {
		invDest = artifact.Route(flagScanInventory, filepath.Join(baseDir, "inventory.json"))
	}
	if emitIdx {
		idxDest = artifact.Route(flagScanIndexes, filepath.Join(baseDir, "indexes.json"))
	}
	if err := artifact.CheckSingleStdout(invDest, idxDest); err != nil {
		return err
	}

	if emitInv {
		emitArtifact(cmd, invDest, records, flagScanPretty, rec)
	}
	if emitIdx {
		payload, err := indexPayload(records, flagScanIndexesOnly)
		if err != nil {
			return err
		}
		emitArtifact(cmd, idxDest, payload, flagScanPretty, rec)
	}
	return nil
}

// indexPayload builds the index artifact, optionally restricted to a subset
// of the five views.
func indexPayload(records []*marginalia.Record, only []string) (any, error) {
	ix := marginalia.BuildIndexes(records)
	if len(only) == 0 {
		return ix, nil
	}
	return ix.Only(only)
}

// emitArtifact serializes v and routes it to a file (atomically) or stdout.
// Write failures become io events rather than aborting the command.
func emitArtifact(cmd *cobra.Command, dest string, v any, pretty bool, rec *events.Recorder) {
	data, err := artifact.Dump(v, pretty)
	if err != nil {
		rec.Append(events.KindInternalError, map[string]any{"detail": err.Error()})
		return
	}
	if dest == artifact.Stdout {
		cmd.OutOrStdout().Write(data)
		return
	}
	if err := artifact.WriteAtomic(dest, data); err != nil {
		rec.Append(events.KindIOWriteError, map[string]any{"path": dest, "detail": err.Error()})
	}
}

// persistInventory writes the inventory into a SQLite database.
func persistInventory(dbPath string, records []*marginalia.Record, rec *events.Recorder) {
	st, err := store.New(dbPath)
	if err != nil {
		rec.Append(events.KindDBError, map[string]any{"path": dbPath, "detail": err.Error()})
		return
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		rec.Append(events.KindDBError, map[string]any{"path": dbPath, "detail": err.Error()})
		return
	}
	if err := st.ReplaceAll(records); err != nil {
		rec.Append(events.KindDBError, map[string]any{"path": dbPath, "detail": err.Error()})
	}
}
