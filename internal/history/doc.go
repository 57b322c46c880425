// Package history persists instrument feat changes to a local SQLite
// database, giving each lab a queryable audit trail that survives broker
// and time-series outages.
//
// # Architecture
//
// The package has two halves:
//
//   - Store: owns the SQLite connection (WAL mode, busy timeout, single
//     writer) and exposes Record, History and Prune.
//   - Recorder: attaches to instrument.Device change notifications and
//     writes one row per observed feat change.
//
// # Usage
//
//	store, err := history.Open(history.Config{
//	    Path:        "data/lantz.db",
//	    WALMode:     true,
//	    BusyTimeout: 5,
//	})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	rec := history.NewRecorder(store)
//	stop := rec.Watch(device)
//	defer stop()
//
// Rows older than the configured retention are removed with Prune,
// typically from a periodic goroutine in the daemon.
package history
