// Package feed subscribes to the device event broker and delivers
// sensor samples, location fixes and fix-status events into the
// capture process.
package feed

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ridelog-data/ridelog/internal/capture"
	"github.com/ridelog-data/ridelog/internal/monitoring"
	"github.com/ridelog-data/ridelog/internal/motion"
)

// Config configures the broker connection and topics. ControlTopic is
// optional; leave it empty when the lifecycle is driven elsewhere.
type Config struct {
	Broker        string
	ClientID      string
	Username      string
	Password      string
	SensorTopic   string
	LocationTopic string
	StatusTopic   string
	ControlTopic  string
}

// SessionControls is the measurement lifecycle surface the control
// topic drives.
type SessionControls interface {
	Start() (*motion.Measurement, error)
	Pause() error
	Resume() error
	Stop() error
}

// Feed is the MQTT subscriber feeding one capture process. Decode
// failures are logged and dropped; a malformed message never stops
// the stream.
type Feed struct {
	cfg      Config
	process  *capture.Process
	controls SessionControls
	client   mqtt.Client
}

// New creates a Feed delivering into process. controls may be nil if
// cfg.ControlTopic is empty.
func New(cfg Config, process *capture.Process, controls SessionControls) *Feed {
	return &Feed{cfg: cfg, process: process, controls: controls}
}

// Start connects to the broker and subscribes to all three topics.
func (f *Feed) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(f.cfg.Broker)
	opts.SetClientID(f.cfg.ClientID)
	if f.cfg.Username != "" {
		opts.SetUsername(f.cfg.Username)
		opts.SetPassword(f.cfg.Password)
	}

	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = f.onConnect
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		monitoring.Logf("feed: connection lost: %v (will auto-reconnect)", err)
	}

	f.client = mqtt.NewClient(opts)
	monitoring.Logf("feed: connecting to %s as %s", f.cfg.Broker, f.cfg.ClientID)

	token := f.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt connect failed: %w", token.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (f *Feed) Stop() {
	if f.client != nil && f.client.IsConnected() {
		f.client.Disconnect(1000)
	}
	monitoring.Logf("feed: stopped")
}

func (f *Feed) onConnect(client mqtt.Client) {
	monitoring.Logf("feed: connected")

	subscriptions := map[string]mqtt.MessageHandler{
		f.cfg.SensorTopic:   f.onSensorMessage,
		f.cfg.LocationTopic: f.onLocationMessage,
		f.cfg.StatusTopic:   f.onStatusMessage,
	}
	if f.cfg.ControlTopic != "" && f.controls != nil {
		subscriptions[f.cfg.ControlTopic] = f.onControlMessage
	}
	for topic, handler := range subscriptions {
		token := client.Subscribe(topic, 0, handler)
		if !token.WaitTimeout(5 * time.Second) {
			monitoring.Logf("feed: subscribe timeout for %s", topic)
			continue
		}
		if token.Error() != nil {
			monitoring.Logf("feed: subscribe error for %s: %v", topic, token.Error())
			continue
		}
		monitoring.Logf("feed: subscribed to %s", topic)
	}
}

func (f *Feed) onSensorMessage(_ mqtt.Client, msg mqtt.Message) {
	kind, x, y, z, tsNs, err := decodeSensorEvent(msg.Payload())
	if err != nil {
		monitoring.Debugf("feed: dropping sensor message: %v", err)
		return
	}
	f.process.OnSensorChanged(kind, x, y, z, tsNs)
}

func (f *Feed) onLocationMessage(_ mqtt.Client, msg mqtt.Message) {
	loc, err := decodeLocationEvent(msg.Payload())
	if err != nil {
		monitoring.Debugf("feed: dropping location message: %v", err)
		return
	}
	f.process.OnLocationChanged(loc)
}

func (f *Feed) onStatusMessage(_ mqtt.Client, msg mqtt.Message) {
	event, err := decodeStatusEvent(msg.Payload())
	if err != nil {
		monitoring.Debugf("feed: dropping status message: %v", err)
		return
	}
	switch event {
	case statusFixAcquired:
		f.process.OnFixAcquired()
	case statusFixLost:
		f.process.OnFixLost()
	}
}

func (f *Feed) onControlMessage(_ mqtt.Client, msg mqtt.Message) {
	command, err := decodeControlEvent(msg.Payload())
	if err != nil {
		monitoring.Debugf("feed: dropping control message: %v", err)
		return
	}

	switch command {
	case commandStart:
		m, err := f.controls.Start()
		if err == nil {
			monitoring.Logf("feed: started measurement %d", m.ID)
		}
		logControlError(command, err)
	case commandPause:
		logControlError(command, f.controls.Pause())
	case commandResume:
		logControlError(command, f.controls.Resume())
	case commandFinish:
		logControlError(command, f.controls.Stop())
	}
}

func logControlError(command string, err error) {
	if err != nil {
		monitoring.Logf("feed: %s command failed: %v", command, err)
	}
}
