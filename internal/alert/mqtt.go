package alert

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const mqttConnectTimeout = 10 * time.Second

// MQTTConfig holds the MQTT channel configuration.
type MQTTConfig struct {
	Server   string
	Username string
	Password string
	QOS      uint8
	ClientID string
	Topic    string
}

// MQTTChannel publishes alerts as JSON to a MQTT topic.
type MQTTChannel struct {
	conn  paho.Client
	qos   uint8
	topic string
}

// NewMQTTChannel creates and connects a new MQTTChannel.
func NewMQTTChannel(conf MQTTConfig) (*MQTTChannel, error) {
	opts := paho.NewClientOptions()
	opts.AddBroker(conf.Server)
	opts.SetUsername(conf.Username)
	opts.SetPassword(conf.Password)
	opts.SetClientID(conf.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(c paho.Client, err error) {
		log.WithError(err).Error("alert: mqtt connection lost")
	})

	c := MQTTChannel{
		conn:  paho.NewClient(opts),
		qos:   conf.QOS,
		topic: conf.Topic,
	}

	log.WithFields(log.Fields{
		"server": conf.Server,
		"topic":  conf.Topic,
	}).Info("alert: connecting to mqtt broker")

	token := c.conn.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, errors.New("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "mqtt connect error")
	}

	return &c, nil
}

// Name implements the Channel interface.
func (c *MQTTChannel) Name() string {
	return "mqtt"
}

// Send implements the Channel interface.
func (c *MQTTChannel) Send(a Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "marshal alert error")
	}

	token := c.conn.Publish(c.topic, c.qos, false, b)
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("publish to %s timeout", c.topic)
	}
	return errors.Wrap(token.Error(), "publish alert error")
}

// Close disconnects from the broker.
func (c *MQTTChannel) Close() error {
	c.conn.Disconnect(250)
	return nil
}
