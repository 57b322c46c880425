package history

import (
	"context"
	"fmt"
	"time"

	"github.com/lantzproject/lantz-core/internal/instrument"
)

// recordTimeout bounds a single insert triggered by a change notification.
const recordTimeout = 5 * time.Second

// Logger is the minimal logging surface the recorder needs.
// *slog.Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder writes instrument feat changes to a Store.
//
// Change notifications run on the goroutine that performed the set or
// get, so each insert is bounded by recordTimeout to keep a slow disk
// from stalling instrument operations indefinitely.
type Recorder struct {
	store  *Store
	logger Logger
}

// NewRecorder creates a recorder writing to the given store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store}
}

// SetLogger sets a logger for insert failures. Without one, failed
// inserts are silently dropped.
func (r *Recorder) SetLogger(logger Logger) {
	r.logger = logger
}

// Watch subscribes to every feat change of the device, dict-feat keys
// included, and records each one. The returned stop function detaches the
// listener.
func (r *Recorder) Watch(d *instrument.Device) (stop func()) {
	return d.OnAnyChange(func(feat string, old, new any) {
		r.recordChange(d.Name(), feat, old, new)
	})
}

// recordChange persists one observed change.
func (r *Recorder) recordChange(instName, feat string, old, new any) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	err := r.store.Record(ctx, Entry{
		Instrument: instName,
		Feat:       feat,
		Value:      storableValue(new),
		Previous:   storableValue(old),
	})
	if err != nil && r.logger != nil {
		r.logger.Warn("feat history insert failed",
			"instrument", instName, "feat", feat, "error", err)
	}
}

// storableValue maps device values onto JSON-friendly types. The Unset
// sentinel becomes nil, values without a native JSON form are stringified.
func storableValue(v any) any {
	if v == instrument.Unset || v == nil {
		return nil
	}
	switch v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	default:
		return fmt.Sprint(v)
	}
}
