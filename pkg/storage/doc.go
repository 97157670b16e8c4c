// Package storage writes harvested data out of the state store as files.
//
// The Manager owns one output directory. Every export is written to a
// temporary file and renamed into place, so readers only ever see complete
// files. Detail rows are streamed from the store in identifier order and
// written as CSV with a header row, or as JSON lines keyed by column name.
//
// Usage:
//
//	manager, err := storage.NewManager("exports")
//	if err != nil {
//	    return err
//	}
//	path, rows, err := manager.ExportDetail(ctx, st, features.Open, storage.FormatCSV)
package storage
