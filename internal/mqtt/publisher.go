// Package mqtt mirrors sensor states to an MQTT broker and accepts setting
// writes from it.
//
// Topics, relative to the configured prefix:
//
//	<prefix>/<key>                 retained state of a dynamic or history sensor
//	<prefix>/<key>/series          retained JSON of a reconstructed history
//	<prefix>/binary/<sensor id>    retained ON/OFF of a binary sensor
//	<prefix>/set/<key>             payload is written to key
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/nbeconnect/internal/sensors"
	"github.com/tejusbharadwaj/nbeconnect/internal/store"
)

const (
	qos          = 1
	tokenTimeout = 5 * time.Second
	writeTimeout = 10 * time.Second
)

// Client is the part of the paho client the publisher uses
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Setter performs writes received on the set topics
type Setter interface {
	SetValue(ctx context.Context, key, value string) error
}

// Options configures the broker connection
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Connect dials the broker
func Connect(opts Options, logger *logrus.Entry) (paho.Client, error) {
	if _, err := url.Parse(opts.Broker); err != nil {
		return nil, fmt.Errorf("invalid broker url: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.WithError(err).Warn("mqtt connection lost")
		}).
		SetOnConnectHandler(func(_ paho.Client) {
			logger.WithField("broker", opts.Broker).Info("connected to mqtt broker")
		})
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}

	client := paho.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(tokenTimeout) {
		return nil, fmt.Errorf("timed out connecting to %s", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.Broker, err)
	}
	return client, nil
}

// Publisher publishes sensor states after every committed snapshot
type Publisher struct {
	client Client
	prefix string
	states func() []sensors.State
	setter Setter
	logger *logrus.Entry
}

func NewPublisher(client Client, prefix string, states func() []sensors.State, setter Setter, logger *logrus.Entry) *Publisher {
	return &Publisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		states: states,
		setter: setter,
		logger: logger,
	}
}

// StateTopic returns the topic a state is published on
func (p *Publisher) StateTopic(st sensors.State) string {
	if st.On != nil {
		return p.prefix + "/binary/" + st.SensorID
	}
	return p.prefix + "/" + st.Key
}

func (p *Publisher) OnSnapshot(_ context.Context, _ *store.Snapshot) {
	published := 0
	for _, st := range p.states() {
		if !st.Available {
			continue
		}

		payload := st.Value
		if st.On != nil {
			payload = "OFF"
			if *st.On {
				payload = "ON"
			}
		}
		if err := p.publish(p.StateTopic(st), payload); err != nil {
			p.logger.WithError(err).WithField("sensor", st.SensorID).Warn("failed to publish state")
			continue
		}
		published++

		if st.Series != nil {
			body, err := json.Marshal(st.Series)
			if err != nil {
				p.logger.WithError(err).WithField("sensor", st.SensorID).Error("failed to encode series")
				continue
			}
			if err := p.publish(p.StateTopic(st)+"/series", body); err != nil {
				p.logger.WithError(err).WithField("sensor", st.SensorID).Warn("failed to publish series")
			}
		}
	}
	p.logger.WithField("states", published).Debug("published states")
}

func (p *Publisher) publish(topic string, payload interface{}) error {
	token := p.client.Publish(topic, qos, true, payload)
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("timed out publishing %s", topic)
	}
	return token.Error()
}

// Subscribe routes messages on <prefix>/set/# to the setter
func (p *Publisher) Subscribe() error {
	topic := p.prefix + "/set/#"
	token := p.client.Subscribe(topic, qos, p.onSet)
	if !token.WaitTimeout(tokenTimeout) {
		return fmt.Errorf("timed out subscribing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) onSet(_ paho.Client, msg paho.Message) {
	key := strings.TrimPrefix(msg.Topic(), p.prefix+"/set/")
	value := strings.TrimSpace(string(msg.Payload()))
	log := p.logger.WithFields(logrus.Fields{"key": key, "value": value})

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := p.setter.SetValue(ctx, key, value); err != nil {
		log.WithError(err).Warn("mqtt write failed")
		return
	}
	log.Debug("mqtt write applied")
}
