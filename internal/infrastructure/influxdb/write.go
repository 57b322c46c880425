package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/lantzproject/lantz-core/internal/instrument"
)

// WriteFeatValue writes a single numeric feat observation.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - instName: Instrument name (e.g., "fungen1")
//   - feat: Feat name, including the key for keyed feats
//   - value: The numeric value to record
//
// Example:
//
//	client.WriteFeatValue("fungen1", "frequency", 1000.0)
//	client.WriteFeatValue("tempctl1", "setpoint['ch1']", 21.5)
func (c *Client) WriteFeatValue(instName string, feat string, value float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"feat_values",
		map[string]string{
			"instrument": instName,
			"feat":       feat,
		},
		map[string]interface{}{
			"value": value,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteOpStats exports one instrument's accumulated call statistics.
//
// Every (target, operation) pair the instrument has recorded becomes one
// point in the op_stats measurement: call count plus min/max/mean/last
// durations in milliseconds. Writes are batched and non-blocking.
//
// Parameters:
//   - instName: Instrument name used as the point tag
//   - stats: The instrument's statistics recorder
func (c *Client) WriteOpStats(instName string, stats *instrument.Stats) {
	if !c.IsConnected() || stats == nil {
		return
	}

	now := time.Now()
	stats.Each(func(target, op string, e instrument.StatEntry) {
		point := write.NewPoint(
			"op_stats",
			map[string]string{
				"instrument": instName,
				"target":     target,
				"op":         op,
			},
			map[string]interface{}{
				"count":   int64(e.Count), // #nosec G115 -- counts never approach int64 range
				"last_ms": durationMs(e.Last),
				"min_ms":  durationMs(e.Min),
				"max_ms":  durationMs(e.Max),
				"mean_ms": durationMs(e.Mean()),
			},
			now,
		)
		c.writeAPI.WritePoint(point)
	})
}

// WriteDeviceStats exports the statistics of one device under its own name.
// Convenience wrapper around WriteOpStats.
func (c *Client) WriteDeviceStats(d *instrument.Device) {
	if d == nil {
		return
	}
	c.WriteOpStats(d.Name(), d.Stats())
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("flock_status",
//	    map[string]string{"member": "fungen1"},
//	    map[string]interface{}{"ready": true})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., replayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

// durationMs converts a duration to fractional milliseconds.
func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
