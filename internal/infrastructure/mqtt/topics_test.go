package mqtt

import (
	"errors"
	"strings"
	"testing"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/config"
)

func TestTopicsFrom(t *testing.T) {
	got := TopicsFrom(config.MQTTTopicsConfig{Alert: "flat/alert"})

	if got.Telemetry != "home/sensors" || got.Alert != "flat/alert" || got.Control != "home/control" {
		t.Errorf("TopicsFrom() = %+v", got)
	}
	if in := got.Inbound(); len(in) != 2 || in[0] != "home/sensors" || in[1] != "flat/alert" {
		t.Errorf("Inbound() = %v", in)
	}
}

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		topic  string
		filter bool
		ok     bool
	}{
		{"home/sensors", false, true},
		{"home/sensors", true, true},
		{"home/+/status", true, true},
		{"home/#", true, true},
		{"#", true, true},
		{"home/+", false, false},
		{"home/#/x", true, false},
		{"home/sens+", true, false},
		{"home/a#", true, false},
		{"", false, false},
		{"home/\x00", false, false},
		{strings.Repeat("a", maxTopicLength+1), false, false},
	}

	for _, tt := range tests {
		name := tt.topic
		if len(name) > 20 {
			name = name[:20]
		}
		t.Run(name, func(t *testing.T) {
			err := ValidateTopic(tt.topic, tt.filter)
			if tt.ok && err != nil {
				t.Errorf("ValidateTopic(%q, %v) error = %v", tt.topic, tt.filter, err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidTopic) {
				t.Errorf("ValidateTopic(%q, %v) error = %v, want ErrInvalidTopic", tt.topic, tt.filter, err)
			}
		})
	}
}
