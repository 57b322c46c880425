package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/lantzproject/lantz-core/internal/instrument"
)

// =============================================================================
// Validation Tests (no broker required)
// =============================================================================

// disconnected returns a client that was never connected; the connected flag
// short-circuits before the nil paho client is touched.
func disconnected() *Client {
	return &Client{subscriptions: make(map[string]subscription)}
}

func TestPublishEmptyTopic(t *testing.T) {
	c := disconnected()
	if err := c.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	c := disconnected()
	if err := c.Publish("lantz/state/a/b", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	c := disconnected()
	payload := make([]byte, maxPayloadSize+1)
	if err := c.Publish("lantz/state/a/b", payload, 1, false); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	c := disconnected()
	if err := c.Publish("lantz/state/a/b", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	c := disconnected()
	if err := c.Subscribe("", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Subscribe("lantz/#", 3, func(string, []byte) error { return nil }); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad qos: err = %v, want ErrInvalidQoS", err)
	}
	if err := c.Subscribe("lantz/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler: err = %v, want ErrSubscribeFailed", err)
	}
	if err := c.Subscribe("lantz/#", 1, func(string, []byte) error { return nil }); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: err = %v, want ErrNotConnected", err)
	}
}

func TestUnsubscribeValidation(t *testing.T) {
	c := disconnected()
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic: err = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("lantz/#"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected: err = %v, want ErrNotConnected", err)
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on never-connected client error = %v, want nil", err)
	}
}

func TestSubscriptionTracking(t *testing.T) {
	c := disconnected()
	if c.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", c.SubscriptionCount())
	}
	if c.HasSubscription("lantz/state/+/+") {
		t.Error("HasSubscription() = true for untracked topic")
	}
}

// =============================================================================
// Topic Builder Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name: "FeatState",
			builder: func() string {
				return Topics{}.FeatState("fungen1", "frequency")
			},
			expected: "lantz/state/fungen1/frequency",
		},
		{
			name: "InstrumentStats",
			builder: func() string {
				return Topics{}.InstrumentStats("fungen1")
			},
			expected: "lantz/stats/fungen1",
		},
		{
			name: "FlockMember",
			builder: func() string {
				return Topics{}.FlockMember("fungen1")
			},
			expected: "lantz/flock/fungen1/state",
		},
		{
			name: "SystemStatus",
			builder: func() string {
				return Topics{}.SystemStatus()
			},
			expected: "lantz/system/status",
		},
		{
			name: "AllFeatStates",
			builder: func() string {
				return Topics{}.AllFeatStates()
			},
			expected: "lantz/state/+/+",
		},
		{
			name: "InstrumentFeatStates",
			builder: func() string {
				return Topics{}.InstrumentFeatStates("fungen1")
			},
			expected: "lantz/state/fungen1/+",
		},
		{
			name: "AllFlockMembers",
			builder: func() string {
				return Topics{}.AllFlockMembers()
			},
			expected: "lantz/flock/+/state",
		},
		{
			name: "AllTopics",
			builder: func() string {
				return Topics{}.AllTopics()
			},
			expected: "lantz/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.builder(); got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("lantzd")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, `"client_id":"lantzd"`) {
		t.Errorf("online payload = %s", online)
	}
	offline := buildOfflinePayload("lantzd")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, "graceful_shutdown") {
		t.Errorf("offline payload = %s", offline)
	}
}

// =============================================================================
// StatePublisher Tests
// =============================================================================

// recordingPublisher captures published messages.
type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][]byte
	retained map[string]bool
	fail     error
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{
		messages: make(map[string][]byte),
		retained: make(map[string]bool),
	}
}

func (r *recordingPublisher) Publish(topic string, payload []byte, _ byte, retained bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.messages[topic] = append([]byte(nil), payload...)
	r.retained[topic] = retained
	return nil
}

func (r *recordingPublisher) message(topic string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[topic]
	return msg, ok
}

func TestStatePublisherPublishesChanges(t *testing.T) {
	value := 1000
	cls := instrument.NewClass("FunGen")
	feat, err := instrument.NewFeat("frequency", instrument.FeatConfig{
		Get: func(*instrument.Device) (any, error) { return value, nil },
		Set: func(_ *instrument.Device, v any) error { value = v.(int); return nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cls.AddFeat(feat); err != nil {
		t.Fatal(err)
	}
	d := cls.New("fungen1")

	rec := newRecordingPublisher()
	pub := NewStatePublisher(rec, 1)
	stop := pub.Watch(d)
	defer stop()

	if err := d.Set("frequency", 2000); err != nil {
		t.Fatal(err)
	}

	topic := Topics{}.FeatState("fungen1", "frequency")
	payload, ok := rec.message(topic)
	if !ok {
		t.Fatalf("no message on %s", topic)
	}
	if !rec.retained[topic] {
		t.Error("state message not retained")
	}

	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if msg.Instrument != "fungen1" || msg.Feat != "frequency" {
		t.Errorf("message = %+v", msg)
	}
	if msg.Value != float64(2000) {
		t.Errorf("value = %v (%T), want 2000", msg.Value, msg.Value)
	}
	// The first observation has no previous value.
	if msg.Previous != nil {
		t.Errorf("previous = %v, want nil for Unset", msg.Previous)
	}

	// A second change carries the previous value.
	if err := d.Set("frequency", 3000); err != nil {
		t.Fatal(err)
	}
	payload, _ = rec.message(topic)
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Previous != float64(2000) {
		t.Errorf("previous = %v, want 2000", msg.Previous)
	}

	// Detached publishers see nothing.
	stop()
	delete(rec.messages, topic)
	if err := d.Set("frequency", 4000); err != nil {
		t.Fatal(err)
	}
	if _, ok := rec.message(topic); ok {
		t.Error("publisher still active after stop")
	}
}

func TestStatePublisherPublishesDictFeatKeys(t *testing.T) {
	lines := map[any]any{}
	cls := instrument.NewClass("FunGen")
	df, err := instrument.NewDictFeat("dout", instrument.DictFeatConfig{
		Get: func(_ *instrument.Device, key any) (any, error) { return lines[key], nil },
		Set: func(_ *instrument.Device, key, v any) error { lines[key] = v; return nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cls.AddDictFeat(df); err != nil {
		t.Fatal(err)
	}
	d := cls.New("fungen1")

	rec := newRecordingPublisher()
	pub := NewStatePublisher(rec, 1)
	stop := pub.Watch(d)
	defer stop()

	// The key is first touched after Watch attached.
	if err := d.SetKeyed("dout", 3, true); err != nil {
		t.Fatal(err)
	}

	topic := Topics{}.FeatState("fungen1", "dout[3]")
	payload, ok := rec.message(topic)
	if !ok {
		t.Fatalf("no message on %s", topic)
	}
	var msg StateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if msg.Feat != "dout[3]" || msg.Value != true {
		t.Errorf("message = %+v, want dout[3] true", msg)
	}
}

func TestEncodeValue(t *testing.T) {
	if got := encodeValue(instrument.Unset); got != nil {
		t.Errorf("encodeValue(Unset) = %v, want nil", got)
	}
	if got := encodeValue(42); got != 42 {
		t.Errorf("encodeValue(42) = %v", got)
	}
	if got := encodeValue([]int{1, 2}); got != "[1 2]" {
		t.Errorf("encodeValue(slice) = %v, want stringified", got)
	}
}
