package mqttsn

import "time"

// Listen is a UDP bind address, kept as its own type (as the teacher does
// for its HTTP/MQTT/Websocket listeners, options.go) so config files can
// name several listeners without repeating the field set.
type Listen struct {
	URL string `json:"url"`
}

// Config is the broker's static configuration, loaded once at startup and
// held in the package-level CONFIG the way the teacher's config/CONFIG
// pair works (options.go), generalized from MQTT auth/listener settings to
// MQTT-SN's UDP/keep-alive/retry/admin settings.
type Config struct {
	UDP   Listen `json:"UDP"`
	Admin Listen `json:"Admin"`

	// MinKeepAlive/MaxKeepAlive bound the keep-alive duration (seconds) a
	// CONNECT may advertise; outside this range CONNECT is rejected with
	// RejectedNotSupported.
	MinKeepAlive uint16 `json:"minKeepAlive"`
	MaxKeepAlive uint16 `json:"maxKeepAlive"`

	// RetryInitialDelay is carried in the configuration but not read: the
	// time wheel always schedules a retransmission entry's first retry one
	// slot (one second) ahead, and subsequent retries back off
	// exponentially (spec §4.4).
	RetryInitialDelay time.Duration `json:"retryInitialDelay"`
	// MaxRetries is the retry budget before a flow is declared failed.
	MaxRetries int `json:"maxRetries"`

	// TimeWheelSlots is the number of one-second slots in the
	// retransmission time wheel's ring (spec §4.4).
	TimeWheelSlots int `json:"timeWheelSlots"`

	// PredefinedTopics seeds the topic registry with numeric ids that
	// never require REGISTER (spec §3, SPEC_FULL.md §D; grounded in
	// original_source/broker_lib.rs's predefined-topic table).
	PredefinedTopics map[uint16]string `json:"predefinedTopics"`
}

// CONFIG is the process-global configuration, mirroring the teacher's
// package-level CONFIG (options.go). Collaborators (cmd/mqttsn-broker)
// load it from JSON before starting the broker.
var CONFIG = &Config{
	UDP:               Listen{URL: ":1883"},
	Admin:             Listen{URL: ":8080"},
	MinKeepAlive:      10,
	MaxKeepAlive:      65535,
	RetryInitialDelay: time.Second,
	MaxRetries:        3,
	TimeWheelSlots:    3600,
	PredefinedTopics:  map[uint16]string{},
}
