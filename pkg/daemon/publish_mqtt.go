package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battstat/pkg/events"
)

const mqttConnectTimeout = 10 * time.Second

// mqttPublisher publishes retained status messages under a topic prefix:
//
//	<prefix>/status   full JSON payload
//	<prefix>/percent  charge percentage
//	<prefix>/charging true or false
//	<prefix>/online   true while the daemon is connected (last will: false)
type mqttPublisher struct {
	client mqtt.Client
	prefix string
}

var _ statusPublisher = &mqttPublisher{}

func newMQTTPublisher(broker, prefix string) (*mqttPublisher, error) {
	p := &mqttPublisher{prefix: prefix}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(mqttClientID())
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetWill(p.topic("online"), "false", 1, true)
	opts.OnConnect = func(c mqtt.Client) {
		c.Publish(p.topic("online"), 1, true, "true")
		logrus.WithField("mqttBroker", broker).Debug("mqtt connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logrus.WithField("mqttBroker", broker).Warnf("mqtt connection lost: %v", err)
	}

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		p.client.Disconnect(0)
		return nil, pkgerrors.Errorf("timed out connecting to mqtt broker %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to connect to mqtt broker %s", broker)
	}

	logrus.WithFields(logrus.Fields{
		"mqttBroker": broker,
		"mqttTopic":  prefix,
	}).Info("publishing battery status to mqtt")

	return p, nil
}

func mqttClientID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("battstat-%s-%d", host, os.Getpid())
}

func (p *mqttPublisher) topic(name string) string {
	return p.prefix + "/" + name
}

func (p *mqttPublisher) name() string { return "mqtt" }

func (p *mqttPublisher) publish(ctx context.Context, ev events.StatusChangedEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return pkgerrors.Wrap(err, "failed to encode status")
	}

	msgs := []struct {
		topic   string
		payload any
	}{
		{p.topic("status"), payload},
		{p.topic("percent"), strconv.Itoa(ev.Status.Percent)},
		{p.topic("charging"), strconv.FormatBool(ev.Status.Charging)},
	}

	for _, m := range msgs {
		token := p.client.Publish(m.topic, 1, true, m.payload)
		select {
		case <-token.Done():
		case <-ctx.Done():
			return pkgerrors.Wrapf(ctx.Err(), "publish to %s", m.topic)
		}
		if err := token.Error(); err != nil {
			return pkgerrors.Wrapf(err, "publish to %s", m.topic)
		}
	}

	return nil
}

func (p *mqttPublisher) Close() {
	// Connected clients announce going away themselves, the will only
	// covers crashes.
	if p.client.IsConnected() {
		p.client.Publish(p.topic("online"), 1, true, "false").WaitTimeout(time.Second)
	}
	p.client.Disconnect(250)
}
