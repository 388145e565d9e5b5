package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/devgrid/devicehub/internal/infrastructure/config"
)

const (
	// defaultConnectTimeout bounds the initial broker handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds the wait on a publish token.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is how long Disconnect waits for in-flight
	// messages, in milliseconds (paho's API takes a uint).
	defaultDisconnectQuiesce = 250

	// defaultKeepAlive is the MQTT keep-alive interval.
	defaultKeepAlive = 30 * time.Second

	// maxReconnectInterval caps paho's exponential reconnect backoff.
	maxReconnectInterval = 2 * time.Minute
)

// buildClientOptions translates DeviceHub configuration into paho options.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	brokerURL := fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(cfg.Broker.ClientID)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetConnectTimeout(defaultConnectTimeout)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Auto-reconnect with capped backoff. Retained status and state
	// snapshots are re-published by the OnConnect handler, so a dropped
	// broker connection heals without operator intervention.
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	opts.SetCleanSession(true)

	return opts
}

// configureLWT sets the Last Will and Testament so integrations observe
// an offline status when DeviceHub dies without a clean shutdown.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	payload := buildLWTPayload(clientID)
	opts.SetBinaryWill(Topics{}.SystemStatus(), payload, 1, true)
}
