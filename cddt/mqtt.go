package cddt

import (
	"context"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ResolveMQTTConfig applies MQTT_* environment overrides on top of cfg
func ResolveMQTTConfig(cfg MQTTConfig) MQTTConfig {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("MQTT_PUBLISH_PREFIX"); v != "" {
		cfg.PublishPrefix = v
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "cddtviz"
	}
	if cfg.PublishPrefix == "" {
		cfg.PublishPrefix = "cddtviz"
	}
	return cfg
}

// NewMQTTClient builds a paho client for cfg. It returns nil when no broker
// is configured, which disables MQTT.
func NewMQTTClient(cfg MQTTConfig) mqtt.Client {
	if cfg.Broker == "" {
		Logf("MQTT disabled: no broker configured")
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOrderMatters(false)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		Logf("[MQTT] connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		Logf("[MQTT] reconnecting...")
	})

	return mqtt.NewClient(opts)
}

// ConnectMQTT connects client, retrying with exponential backoff until it
// succeeds or ctx is done.
func ConnectMQTT(ctx context.Context, client mqtt.Client) error {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		Logf("[MQTT] connecting to broker...")
		token := client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				Logf("[MQTT] connected")
				return nil
			}
			Logf("[MQTT] connection failed: %v", token.Error())
		} else {
			Logf("[MQTT] connection timeout")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("connecting to MQTT broker: %w", ctx.Err())
		case <-time.After(retryDelay):
		}

		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}
