package mqtt

import "fmt"

// Topic prefixes for the lantz MQTT namespace.
//
// State topics use the flat scheme: lantz/state/{instrument}/{feat}
// so dashboards can subscribe per instrument with a single-level wildcard.
const (
	// TopicPrefix is the base for all lantz topics.
	TopicPrefix = "lantz"

	// TopicPrefixSystem is the base for daemon-level topics.
	TopicPrefixSystem = "lantz/system"
)

// Topics provides builders for lantz MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.FeatState("fungen1", "frequency")
//	// Returns: "lantz/state/fungen1/frequency"
type Topics struct{}

// FeatState returns the topic carrying one feat's current value.
//
// Example: lantz/state/fungen1/frequency
func (Topics) FeatState(instrument, feat string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, instrument, feat)
}

// InstrumentStats returns the topic carrying one instrument's operation
// statistics snapshot.
//
// Example: lantz/stats/fungen1
func (Topics) InstrumentStats(instrument string) string {
	return fmt.Sprintf("%s/stats/%s", TopicPrefix, instrument)
}

// FlockMember returns the topic carrying one flock member's lifecycle state.
//
// Example: lantz/flock/fungen1/state
func (Topics) FlockMember(name string) string {
	return fmt.Sprintf("%s/flock/%s/state", TopicPrefix, name)
}

// SystemStatus returns the daemon status topic.
//
// Example: lantz/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllFeatStates returns a pattern matching every feat state update.
//
// Pattern: lantz/state/+/+
func (Topics) AllFeatStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefix)
}

// InstrumentFeatStates returns a pattern matching one instrument's feat
// state updates.
//
// Pattern: lantz/state/fungen1/+
func (Topics) InstrumentFeatStates(instrument string) string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, instrument)
}

// AllFlockMembers returns a pattern matching every member lifecycle update.
//
// Pattern: lantz/flock/+/state
func (Topics) AllFlockMembers() string {
	return fmt.Sprintf("%s/flock/+/state", TopicPrefix)
}

// AllTopics returns a pattern matching all lantz topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: lantz/#
func (Topics) AllTopics() string {
	return "lantz/#"
}
