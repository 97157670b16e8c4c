// Package checkpoint keeps a JSON manifest of the latest harvest run.
//
// The state store remains the record of which identifiers are done; the
// manifest summarises the run for operators:
//   - run id, start and last update time
//   - the current pass
//   - committed rounds and batch outcomes per method
//   - which credentials were spent for which method, masked
//   - whether coverage was incomplete when the run ended
//
// The manifest lives at <data_dir>/run.json and is replaced atomically on
// every write, so a reader never sees a partial file.
package checkpoint
