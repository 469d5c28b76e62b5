package util

import (
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions builds client options the way every device in this
// process does: broker and credentials from config unless the device
// overrides them, a unique client id, auto-reconnect.
func MQTTOptions(broker, idBase string) *MQTT.ClientOptions {
	if broker == "" {
		broker = Config.GetString("broker_uri")
	}
	if idBase == "" {
		idBase = Config.GetString("id_base")
	}
	opts := MQTT.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(idBase + "_" + GetRandString(6))
	opts.SetUsername(Config.GetString("username"))
	opts.SetPassword(Config.GetString("password"))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnectionLost = func(client MQTT.Client, err error) {
		Logger.Warn().Msgf("mqtt connection lost: %v", err)
	}
	return opts
}

// MQTTConnect connects a client built from the given options, waiting
// for the broker handshake.
func MQTTConnect(opts *MQTT.ClientOptions) (MQTT.Client, error) {
	client := MQTT.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}
