// Package mqtt implements a radio backend receiving raw frames over a MQTT
// broker, as forwarded by the ground-side radio bridge.
package mqtt

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skymesh/skymesh-ground-monitor/internal/backend"
	"github.com/skymesh/skymesh-ground-monitor/internal/config"
)

const connectTimeout = 10 * time.Second

// Backend implements a MQTT radio backend.
type Backend struct {
	conn     paho.Client
	dataChan chan []byte

	eventTopic string
	qos        uint8
}

// NewBackend creates a new Backend.
func NewBackend(c config.Config) (backend.Backend, error) {
	conf := c.Monitor.Backend.MQTT

	b := Backend{
		dataChan:   make(chan []byte, 100),
		eventTopic: conf.EventTopic,
		qos:        conf.QOS,
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(conf.Server)
	opts.SetUsername(conf.Username)
	opts.SetPassword(conf.Password)
	opts.SetCleanSession(conf.CleanSession)
	opts.SetClientID(conf.ClientID)
	opts.SetOnConnectHandler(b.onConnected)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	if conf.MaxReconnectInterval > 0 {
		opts.SetMaxReconnectInterval(conf.MaxReconnectInterval)
	}

	log.WithFields(log.Fields{
		"server": conf.Server,
		"topic":  conf.EventTopic,
	}).Info("backend/mqtt: connecting to mqtt broker")

	b.conn = paho.NewClient(opts)
	token := b.conn.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.New("backend/mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrap(err, "backend/mqtt: connect error")
	}

	return &b, nil
}

// DataChan implements the backend.Backend interface.
func (b *Backend) DataChan() chan []byte {
	return b.dataChan
}

// Close implements the backend.Backend interface.
func (b *Backend) Close() error {
	log.Info("backend/mqtt: closing backend")
	b.conn.Disconnect(250)
	close(b.dataChan)
	return nil
}

func (b *Backend) onConnected(c paho.Client) {
	log.Info("backend/mqtt: connected to mqtt broker")

	for {
		token := c.Subscribe(b.eventTopic, b.qos, b.handleEvent)
		token.Wait()
		if err := token.Error(); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"topic": b.eventTopic,
			}).Error("backend/mqtt: subscribe error, retrying")
			time.Sleep(time.Second)
			continue
		}
		return
	}
}

func (b *Backend) onConnectionLost(c paho.Client, err error) {
	log.WithError(err).Error("backend/mqtt: connection to broker lost")
}

func (b *Backend) handleEvent(c paho.Client, msg paho.Message) {
	data := make([]byte, len(msg.Payload()))
	copy(data, msg.Payload())

	select {
	case b.dataChan <- data:
	default:
		log.Warning("backend/mqtt: data channel full, dropping chunk")
	}
}
