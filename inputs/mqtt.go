package inputs

import (
	"encoding/json"
	"fmt"
	"sync"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/jbialy/tally_controller/tally"
	"github.com/jbialy/tally_controller/util"
)

// MQTTInput subscribes to a topic carrying JSON-encoded tally states
// and emits one event per message, in broker delivery order. Each
// input owns its client connection.
type MQTTInput struct {
	name   string
	broker string
	topic  string

	mu      sync.Mutex
	running bool
	client  MQTT.Client
	fn      func(tally.State)

	// newClient is swapped in tests
	newClient func(*MQTT.ClientOptions) (MQTT.Client, error)
}

// NewMQTTInput creates an input for the given topic. An empty broker
// falls back to the process-wide broker_uri config value.
func NewMQTTInput(name, broker, topic string) *MQTTInput {
	return &MQTTInput{
		name:      name,
		broker:    broker,
		topic:     topic,
		newClient: util.MQTTConnect,
	}
}

func (m *MQTTInput) Name() string { return m.name }

func (m *MQTTInput) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *MQTTInput) Notify(fn func(tally.State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
}

func (m *MQTTInput) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	client, err := m.newClient(util.MQTTOptions(m.broker, m.name))
	if err != nil {
		return err
	}
	if token := client.Subscribe(m.topic, 0, m.receive); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("subscribe %s: %w", m.topic, token.Error())
	}
	m.client = client
	m.running = true
	util.Logger.Info().Msgf("%s subscribed to %s", m.name, m.topic)
	return nil
}

func (m *MQTTInput) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	m.client.Disconnect(250)
	m.client = nil
	return nil
}

func (m *MQTTInput) receive(client MQTT.Client, message MQTT.Message) {
	st, err := decodeStatePayload(message.Payload())
	if err != nil {
		util.Logger.Warn().Msgf("%s dropped message on %s: %v", m.name, message.Topic(), err)
		return
	}
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	if fn != nil {
		fn(st)
	}
}

func decodeStatePayload(payload []byte) (tally.State, error) {
	var st tally.State
	if err := json.Unmarshal(payload, &st); err != nil {
		return tally.State{}, err
	}
	if st.Index == tally.Broadcast {
		return tally.State{}, fmt.Errorf("index %#04x is the broadcast address", st.Index)
	}
	return st, nil
}
