package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lantzproject/lantz-core/internal/instrument"
)

// Publisher is the publish surface StatePublisher writes to. *Client
// satisfies it; tests substitute a recorder.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StateMessage is the JSON payload published for one feat change.
type StateMessage struct {
	Instrument string    `json:"instrument"`
	Feat       string    `json:"feat"`
	Value      any       `json:"value"`
	Previous   any       `json:"previous,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatePublisher forwards instrument feat changes to the broker as retained
// state messages on lantz/state/{instrument}/{feat}.
type StatePublisher struct {
	pub    Publisher
	qos    byte
	logger Logger
}

// NewStatePublisher creates a publisher writing at the given QoS.
func NewStatePublisher(pub Publisher, qos byte) *StatePublisher {
	return &StatePublisher{pub: pub, qos: qos}
}

// SetLogger sets a logger for publish failures. Without one, failures are
// silently dropped; state topics are retained so the next change heals them.
func (p *StatePublisher) SetLogger(logger Logger) {
	p.logger = logger
}

// Watch subscribes to every feat change of the device, dict-feat keys
// included, and publishes each one. The returned stop function detaches the
// listener.
func (p *StatePublisher) Watch(d *instrument.Device) (stop func()) {
	return d.OnAnyChange(func(feat string, old, new any) {
		p.publishChange(d.Name(), feat, old, new)
	})
}

// publishChange serialises and sends one change. Runs on the notifying
// goroutine, outside the device lock.
func (p *StatePublisher) publishChange(instName, feat string, old, new any) {
	msg := StateMessage{
		Instrument: instName,
		Feat:       feat,
		Value:      encodeValue(new),
		Previous:   encodeValue(old),
		Timestamp:  time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("state message not serialisable",
				"instrument", instName, "feat", feat, "error", err)
		}
		return
	}

	topic := Topics{}.FeatState(instName, feat)
	if err := p.pub.Publish(topic, payload, p.qos, true); err != nil {
		if p.logger != nil {
			p.logger.Warn("state publish failed",
				"topic", topic, "error", err)
		}
	}
}

// encodeValue maps device values onto JSON-friendly types. The Unset
// sentinel becomes nil, values without a native JSON form are stringified.
func encodeValue(v any) any {
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
