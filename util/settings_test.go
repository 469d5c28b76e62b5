package util

import (
	"strings"
	"testing"
)

func TestGetRandStringVariousLengths(t *testing.T) {
	tests := []struct {
		name   string
		length int
	}{
		{"Zero length", 0},
		{"Single character", 1},
		{"Small string", 5},
		{"Client id suffix", 6},
		{"Large string", 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetRandString(tt.length)

			if len(result) != tt.length {
				t.Errorf("GetRandString(%d) = length %d, expected %d", tt.length, len(result), tt.length)
			}

			for i, char := range result {
				if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z')) {
					t.Errorf("GetRandString(%d) contains non-letter at position %d: %c", tt.length, i, char)
				}
			}
		})
	}
}

func TestRegisterNewConfigListener(t *testing.T) {
	config_listeners = []func(){}

	called1 := false
	called2 := false

	listener1 := func() { called1 = true }
	listener2 := func() { called2 = true }

	RegisterNewConfigListener(listener1)
	RegisterNewConfigListener(listener2)

	if len(config_listeners) != 2 {
		t.Errorf("Expected 2 listeners, got %d", len(config_listeners))
	}

	// duplicates are not added
	RegisterNewConfigListener(listener1)
	if len(config_listeners) != 2 {
		t.Errorf("Expected 2 listeners after duplicate registration, got %d", len(config_listeners))
	}

	OnNewConfig()
	if !called1 || !called2 {
		t.Error("OnNewConfig did not invoke every listener")
	}
}

func TestMQTTOptionsDefaultsFromConfig(t *testing.T) {
	Config.Set("broker_uri", "tcp://broker.test:1883")
	Config.Set("id_base", "tally_test")

	opts := MQTTOptions("", "")
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "broker.test:1883" {
		t.Errorf("MQTTOptions broker = %v, expected broker.test:1883", opts.Servers)
	}
	if !strings.HasPrefix(opts.ClientID, "tally_test_") {
		t.Errorf("MQTTOptions client id = %q, expected tally_test_ prefix", opts.ClientID)
	}
	if len(opts.ClientID) != len("tally_test_")+6 {
		t.Errorf("MQTTOptions client id %q missing random suffix", opts.ClientID)
	}
}

func TestMQTTOptionsOverride(t *testing.T) {
	opts := MQTTOptions("tcp://device.local:1883", "umd_out")
	if len(opts.Servers) != 1 || opts.Servers[0].Host != "device.local:1883" {
		t.Errorf("MQTTOptions broker = %v, expected device override", opts.Servers)
	}
	if !strings.HasPrefix(opts.ClientID, "umd_out_") {
		t.Errorf("MQTTOptions client id = %q, expected umd_out_ prefix", opts.ClientID)
	}
}
