package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
)

// ServerStatusTopic carries the retained online/offline status of this
// process, including the broker-published LWT.
const ServerStatusTopic = "home/server/status"

// maxTopicLength is the MQTT limit on UTF-8 encoded topic names.
const maxTopicLength = 65535

// Topics names the bus topics shared with devices.
//
//	topics := mqtt.TopicsFrom(cfg.MQTT.Topics)
//	topics.Telemetry // "home/sensors"
type Topics struct {
	Telemetry string // device -> core readings
	Alert     string // device -> core alerts
	Control   string // core -> device relay commands
}

// DefaultTopics returns the topic names devices use out of the box.
func DefaultTopics() Topics {
	return Topics{
		Telemetry: "home/sensors",
		Alert:     "home/alert",
		Control:   "home/control",
	}
}

// TopicsFrom builds Topics from configuration, falling back to the defaults
// for any empty name.
func TopicsFrom(cfg config.MQTTTopicsConfig) Topics {
	t := DefaultTopics()
	if cfg.Telemetry != "" {
		t.Telemetry = cfg.Telemetry
	}
	if cfg.Alert != "" {
		t.Alert = cfg.Alert
	}
	if cfg.Control != "" {
		t.Control = cfg.Control
	}
	return t
}

// Inbound returns the topics the core subscribes to.
func (t Topics) Inbound() []string {
	return []string{t.Telemetry, t.Alert}
}

// ValidateTopic checks a topic name or filter against MQTT 3.1.1 rules.
// Wildcards are only accepted when filter is true, and then only as whole
// levels with # last.
func ValidateTopic(topic string, filter bool) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidTopic, maxTopicLength)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: contains NUL", ErrInvalidTopic)
	}

	if !filter {
		if strings.ContainsAny(topic, "+#") {
			return fmt.Errorf("%w: wildcards not allowed in %q", ErrInvalidTopic, topic)
		}
		return nil
	}

	levels := strings.Split(topic, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: # must be the last level in %q", ErrInvalidTopic, topic)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: wildcard must occupy a whole level in %q", ErrInvalidTopic, topic)
		}
	}
	return nil
}
