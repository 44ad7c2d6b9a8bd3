package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/marginalia"
	"github.com/jward/marginalia/internal/artifact"
	"github.com/jward/marginalia/internal/events"
	"github.com/jward/marginalia/internal/store"
)

var (
	flagIdxIndexes     string
	flagIdxPretty      bool
	flagIdxCompact     bool
	flagIdxIndexesOnly []string
	flagIdxFromDB      string
)

var indexesCmd = &cobra.Command{
	Use:   "indexes [inventory-file]",
	Short: "Generate indexes from an existing inventory",
	Long:  "Rebuilds the index artifact from a previously emitted inventory JSON file or from a SQLite database written by scan --db.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndexes,
}

func init() {
	indexesCmd.Flags().StringVar(&flagIdxIndexes, "indexes", "", "indexes destination; optional value is 'stdout' or a file path")
	indexesCmd.Flags().Lookup("indexes").NoOptDefVal = "default"
	indexesCmd.Flags().BoolVar(&flagIdxPretty, "pretty", false, "pretty-print JSON output")
	indexesCmd.Flags().BoolVar(&flagIdxCompact, "compact", false, "minified JSON output")
	indexesCmd.Flags().StringSliceVar(&flagIdxIndexesOnly, "indexes-only", nil, "restrict the emitted indexes to the named views")
	indexesCmd.Flags().StringVar(&flagIdxFromDB, "from-db", "", "load the inventory from a SQLite database instead of a JSON file")
}

func runIndexes(cmd *cobra.Command, args []string) error {
	if flagIdxPretty && flagIdxCompact {
		return fmt.Errorf("cannot combine --pretty and --compact")
	}
	if flagIdxFromDB == "" && len(args) == 0 {
		return fmt.Errorf("an inventory file or --from-db is required")
	}
	if flagIdxFromDB != "" && len(args) > 0 {
		return fmt.Errorf("cannot combine an inventory file with --from-db")
	}

	rec := events.NewRecorder(events.FailWarn)

	var records []*marginalia.Record
	if flagIdxFromDB != "" {
		st, err := store.New(flagIdxFromDB)
		if err != nil {
			rec.Append(events.KindDBError, map[string]any{"path": flagIdxFromDB, "detail": err.Error()})
			return finish(cmd, rec)
		}
		defer st.Close()
		records, err = st.Records()
		if err != nil {
			rec.Append(events.KindDBError, map[string]any{"path": flagIdxFromDB, "detail": err.Error()})
			return finish(cmd, rec)
		}
	} else {
		data, err := os.ReadFile(args[0])
		if err != nil {
			rec.Append(events.KindIOReadError, map[string]any{"path": args[0], "detail": err.Error()})
			return finish(cmd, rec)
		}
		records, err = marginalia.DecodeInventory(data)
		if err != nil {
			rec.Append(events.KindInventorySchemaError, map[string]any{"file": args[0], "detail": err.Error()})
			return finish(cmd, rec)
		}
	}

	payload, err := indexPayload(records, flagIdxIndexesOnly)
	if err != nil {
		return err
	}
	dest := artifact.Route(flagIdxIndexes, "indexes.json")
	emitArtifact(cmd, dest, payload, flagIdxPretty, rec)

	return finish(cmd, rec)
}
