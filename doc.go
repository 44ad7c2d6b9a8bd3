// Package marginalia extracts structured "meta" comments from source text and
// binds each one to the program symbol it describes, producing an ordered
// inventory of annotated records plus derived lookup indexes.
//
// # Pipeline
//
// Marginalia operates in two phases:
//
//  1. Scan: for each discovered source file, stream lines through a binding
//     state machine. Meta lines (`# meta: ...`) and doc lines (`# doc: ...`)
//     accumulate into a pending note; a bindable declaration (def, class, or
//     top-level assignment) or an explicit @anchor token drains the note into
//     a finalized [Record] appended to the shared inventory.
//
//  2. Index: project the finished inventory into five grouped views
//     (by-symbol, by-file, by-module, by-thread, by-flag) with
//     [BuildIndexes].
//
// # Usage
//
// Create an Engine, scan a tree, and build indexes:
//
//	rec := events.NewRecorder(events.FailWarn)
//	eng := marginalia.New(marginalia.WithRecorder(rec))
//
//	records, err := eng.Scan(context.Background(), "path/to/project")
//	if err != nil { ... }
//
//	ix := marginalia.BuildIndexes(records)
//
// Diagnostics (grammar errors, orphaned notes, duplicate ids) are surfaced
// through the recorder rather than aborting the scan; the recorder's fail
// policy decides whether an error-level event halts the run at the next file
// boundary.
//
// # Meta grammar
//
// A meta line is a `#` comment whose content begins with the literal token
// `meta:`. The remainder is whitespace-tokenized:
//
//   - `@name` binds the note to an explicit anchor (multi-block aggregation)
//   - `#id` sets an explicit record id
//   - `key=v1,v2` sets a reserved or custom key; reserved keys are systems
//     (alias modules), roles, threads, callers, flags, and assign_type
//
// See the cmd/marginalia binary for the scan and indexes commands.
package marginalia
