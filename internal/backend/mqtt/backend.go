// Package mqtt implements the station transport over a MQTT broker.
package mqtt

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"io/ioutil"
	"sync"
	"text/template"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/lorawan-station/stationd/internal/backend"
	"github.com/lorawan-station/stationd/internal/config"
	"github.com/lorawan-station/stationd/internal/models"
)

// Backend implements a MQTT station transport.
type Backend struct {
	wg sync.WaitGroup

	conn paho.Client
	qos  uint8

	radioPacketChan chan models.RadioPacket
	lnsMessageChan  chan []byte

	// Rendered topics. The radio front-end publishes received frames on
	// the radio uplink topic and listens for transmission commands on
	// the radio downlink topic; the network server mirrors that on the
	// uplink / downlink pair.
	radioUplinkTopic   string
	radioDownlinkTopic string
	uplinkTopic        string
	downlinkTopic      string
}

// NewBackend creates a new MQTT backend.
func NewBackend(c config.Config) (backend.Backend, error) {
	conf := c.Backend.MQTT

	b := Backend{
		qos:             conf.QOS,
		radioPacketChan: make(chan models.RadioPacket),
		lnsMessageChan:  make(chan []byte),
	}

	var err error
	if b.radioUplinkTopic, err = renderTopic(conf.RadioUplinkTopicTemplate, c.Station.ID); err != nil {
		return nil, errors.Wrap(err, "backend/mqtt: render radio uplink topic error")
	}
	if b.radioDownlinkTopic, err = renderTopic(conf.RadioDownlinkTopicTemplate, c.Station.ID); err != nil {
		return nil, errors.Wrap(err, "backend/mqtt: render radio downlink topic error")
	}
	if b.uplinkTopic, err = renderTopic(conf.UplinkTopicTemplate, c.Station.ID); err != nil {
		return nil, errors.Wrap(err, "backend/mqtt: render uplink topic error")
	}
	if b.downlinkTopic, err = renderTopic(conf.DownlinkTopicTemplate, c.Station.ID); err != nil {
		return nil, errors.Wrap(err, "backend/mqtt: render downlink topic error")
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

	tlsconfig, err := newTLSConfig(conf.CACert, conf.TLSCert, conf.TLSKey)
	if err != nil {
		return nil, errors.Wrap(err, "backend/mqtt: load certificates error")
	}
	if tlsconfig != nil {
		opts.SetTLSConfig(tlsconfig)
	}

	log.WithField("server", conf.Server).Info("backend/mqtt: connecting to mqtt broker")
	b.conn = paho.NewClient(opts)
	for {
		if token := b.conn.Connect(); token.Wait() && token.Error() != nil {
			log.WithError(token.Error()).Error("backend/mqtt: connecting to mqtt broker failed, will retry in 2s")
			time.Sleep(2 * time.Second)
		} else {
			break
		}
	}

	return &b, nil
}

// Close closes the backend. The subscriptions are dropped first so the
// handlers drain before the channels close.
func (b *Backend) Close() error {
	log.Info("backend/mqtt: closing backend")

	log.WithField("topic", b.radioUplinkTopic).Info("backend/mqtt: unsubscribing from radio uplink topic")
	if token := b.conn.Unsubscribe(b.radioUplinkTopic); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "backend/mqtt: unsubscribe from %s error", b.radioUplinkTopic)
	}

	log.WithField("topic", b.downlinkTopic).Info("backend/mqtt: unsubscribing from downlink topic")
	if token := b.conn.Unsubscribe(b.downlinkTopic); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "backend/mqtt: unsubscribe from %s error", b.downlinkTopic)
	}

	log.Info("backend/mqtt: handling last messages")
	b.wg.Wait()
	close(b.radioPacketChan)
	close(b.lnsMessageChan)
	return nil
}

// RadioPacketChan returns the channel of frames delivered by the radio
// front-end.
func (b *Backend) RadioPacketChan() chan models.RadioPacket {
	return b.radioPacketChan
}

// LNSMessageChan returns the channel of raw protocol messages received
// from the network server.
func (b *Backend) LNSMessageChan() chan []byte {
	return b.lnsMessageChan
}

// PublishUplink sends an encoded protocol message to the network server.
func (b *Backend) PublishUplink(payload []byte) error {
	mqttCommandCounter("up").Inc()

	log.WithFields(log.Fields{
		"topic": b.uplinkTopic,
		"qos":   b.qos,
		"size":  len(payload),
	}).Info("backend/mqtt: publishing uplink message")

	if token := b.conn.Publish(b.uplinkTopic, b.qos, false, payload); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "backend/mqtt: publish uplink message error")
	}
	return nil
}

// PublishTx sends a transmission command to the radio front-end.
func (b *Backend) PublishTx(pkt models.TXPacket) error {
	mqttCommandCounter("radio_down").Inc()

	payload, err := json.Marshal(pkt)
	if err != nil {
		return errors.Wrap(err, "backend/mqtt: marshal tx packet error")
	}

	log.WithFields(log.Fields{
		"topic":   b.radioDownlinkTopic,
		"qos":     b.qos,
		"dev_eui": pkt.DevEUI,
	}).Info("backend/mqtt: publishing tx packet")

	if token := b.conn.Publish(b.radioDownlinkTopic, b.qos, false, payload); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "backend/mqtt: publish tx packet error")
	}
	return nil
}

func (b *Backend) radioPacketHandler(c paho.Client, msg paho.Message) {
	b.wg.Add(1)
	defer b.wg.Done()

	mqttEventCounter("radio_up").Inc()

	var pkt models.RadioPacket
	if err := json.Unmarshal(msg.Payload(), &pkt); err != nil {
		log.WithFields(log.Fields{
			"data_base64": base64.StdEncoding.EncodeToString(msg.Payload()),
		}).WithError(err).Error("backend/mqtt: unmarshal radio packet error")
		return
	}

	b.radioPacketChan <- pkt
}

func (b *Backend) lnsMessageHandler(c paho.Client, msg paho.Message) {
	b.wg.Add(1)
	defer b.wg.Done()

	mqttEventCounter("dn").Inc()

	// The paho payload buffer is reused, hand the pipeline its own copy.
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())

	b.lnsMessageChan <- payload
}

func (b *Backend) onConnected(c paho.Client) {
	mqttConnectCounter().Inc()
	log.Info("backend/mqtt: connected to mqtt broker")

	for {
		log.WithFields(log.Fields{
			"topic": b.radioUplinkTopic,
			"qos":   b.qos,
		}).Info("backend/mqtt: subscribing to radio uplink topic")
		if token := b.conn.Subscribe(b.radioUplinkTopic, b.qos, b.radioPacketHandler); token.Wait() && token.Error() != nil {
			log.WithFields(log.Fields{
				"topic": b.radioUplinkTopic,
				"qos":   b.qos,
			}).WithError(token.Error()).Error("backend/mqtt: subscribe error")
			time.Sleep(time.Second)
			continue
		}
		break
	}

	for {
		log.WithFields(log.Fields{
			"topic": b.downlinkTopic,
			"qos":   b.qos,
		}).Info("backend/mqtt: subscribing to downlink topic")
		if token := b.conn.Subscribe(b.downlinkTopic, b.qos, b.lnsMessageHandler); token.Wait() && token.Error() != nil {
			log.WithFields(log.Fields{
				"topic": b.downlinkTopic,
				"qos":   b.qos,
			}).WithError(token.Error()).Error("backend/mqtt: subscribe error")
			time.Sleep(time.Second)
			continue
		}
		break
	}
}

func (b *Backend) onConnectionLost(c paho.Client, reason error) {
	mqttDisconnectCounter().Inc()
	log.WithError(reason).Error("backend/mqtt: mqtt connection error")
}

func renderTopic(tmpl, stationID string) (string, error) {
	t, err := template.New("topic").Parse(tmpl)
	if err != nil {
		return "", errors.Wrap(err, "parse template error")
	}

	topic := bytes.NewBuffer(nil)
	if err := t.Execute(topic, struct{ StationID string }{stationID}); err != nil {
		return "", errors.Wrap(err, "execute template error")
	}
	return topic.String(), nil
}

func newTLSConfig(cafile, certFile, certKeyFile string) (*tls.Config, error) {
	if cafile == "" && certFile == "" && certKeyFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{}

	if cafile != "" {
		cacert, err := ioutil.ReadFile(cafile)
		if err != nil {
			return nil, errors.Wrap(err, "load ca certificate error")
		}
		certpool := x509.NewCertPool()
		if !certpool.AppendCertsFromPEM(cacert) {
			return nil, errors.New("append ca certificate error")
		}
		tlsConfig.RootCAs = certpool
	}

	if certFile != "" && certKeyFile != "" {
		kp, err := tls.LoadX509KeyPair(certFile, certKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "load tls key-pair error")
		}
		tlsConfig.Certificates = []tls.Certificate{kp}
	}

	return tlsConfig, nil
}
