// Package storage records admission decisions in a journal.
//
// # Overview
//
// Every decision the limits registry makes can be written to a Backend as an
// Event. The journal is an audit trail for operators: it answers "who was
// throttled and when". Gates never read it back, so the sliding windows
// stay purely in memory.
//
// Three backends are provided:
//
//   - Memory: fixed-size ring, lost on exit (default)
//   - SQLite: file-based, via modernc.org/sqlite or mattn/go-sqlite3
//   - Redis: shared by several instances, with cumulative counters
//
// # Usage
//
//	backend, err := storage.Open(ctx, cfg.Journal)
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	recorder := storage.NewRecorder(backend, storage.DefaultRecorderConfig(), logger)
//	defer recorder.Close()
//
//	recorder.Record(&storage.Event{Policy: "api", Key: "alice", Admitted: true, Allowed: true})
//
//	summary, err := backend.Summary(ctx, storage.Filter{Policy: "api"})
//
// # Thread Safety
//
// All backends and the Recorder are safe for concurrent use.
package storage
