package outputs

import (
	"encoding/json"
	"fmt"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/jbialy/tally_controller/tally"
	"github.com/jbialy/tally_controller/util"
)

// MQTTOutput republishes rendered tally states as JSON, one message
// per slot on topic/<screen>/<index>. Retained publishes let late
// subscribers pick up the current picture; AllOffOnClose clears the
// published slots when the output shuts down.
type MQTTOutput struct {
	name   string
	broker string
	topic  string

	Retain        bool
	AllOffOnClose bool

	mu      sync.Mutex
	running bool
	client  MQTT.Client
	slots   map[tally.Key]struct{}

	// newClient is swapped in tests
	newClient func(*MQTT.ClientOptions) (MQTT.Client, error)
}

// NewMQTTOutput creates an output publishing under the given topic
// prefix. An empty broker falls back to the process-wide broker_uri
// config value.
func NewMQTTOutput(name, broker, topic string) *MQTTOutput {
	return &MQTTOutput{
		name:      name,
		broker:    broker,
		topic:     topic,
		newClient: util.MQTTConnect,
	}
}

func (m *MQTTOutput) Name() string { return m.name }

func (m *MQTTOutput) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MQTTOutput) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	client, err := m.newClient(util.MQTTOptions(m.broker, m.name))
	if err != nil {
		return err
	}
	m.client = client
	m.slots = make(map[tally.Key]struct{})
	m.running = true
	return nil
}

func (m *MQTTOutput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	var err error
	if m.AllOffOnClose {
		for key := range m.slots {
			st := tally.State{Screen: key.Screen, Index: key.Index, Color: tally.Off}
			if perr := m.publish(st); perr != nil && err == nil {
				err = perr
			}
		}
	}
	m.client.Disconnect(250)
	m.client = nil
	m.slots = nil
	return err
}

func (m *MQTTOutput) Render(states []tally.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return fmt.Errorf("%s is not open", m.name)
	}
	for _, st := range states {
		if err := m.publish(st); err != nil {
			return err
		}
		m.slots[st.Key()] = struct{}{}
	}
	return nil
}

func (m *MQTTOutput) publish(st tally.State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%d/%d", m.topic, st.Screen, st.Index)
	if token := m.client.Publish(topic, 0, m.Retain, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", topic, token.Error())
	}
	return nil
}
