package publish

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/rice5941/nakuru/pkg/diag"
	"github.com/rice5941/nakuru/pkg/keys"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	base   string
}

var (
	_ Publisher        = (*RealPublisher)(nil)
	_ ConnectionStatus = (*RealPublisher)(nil)
)

// NewRealPublisher creates a publisher connected to the given broker. The
// broker marks the keypad offline if the connection is lost.
func NewRealPublisher(broker, clientID, base string) (*RealPublisher, error) {
	will, err := FormatStatus(Status{At: time.Now(), Status: Offline})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(join(base, TopicStatus), will, 1, true)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{
		client: client,
		base:   base,
	}, nil
}

// PublishEdge sends a key edge at QoS 1.
func (p *RealPublisher) PublishEdge(e Edge) error {
	payload, err := FormatEdge(e)
	if err != nil {
		return fmt.Errorf("format edge: %w", err)
	}
	return p.publish(TopicKeys, 1, false, payload)
}

// PublishFrame sends a frame at QoS 0.
func (p *RealPublisher) PublishFrame(f diag.Frame) error {
	payload, err := FormatFrame(f)
	if err != nil {
		return fmt.Errorf("format frame: %w", err)
	}
	return p.publish(TopicFrames, 0, false, payload)
}

// PublishCalibration sends a retained calibration result under the key id.
func (p *RealPublisher) PublishCalibration(c keys.Calibration) error {
	payload, err := FormatCalibration(c)
	if err != nil {
		return fmt.Errorf("format calibration: %w", err)
	}
	return p.publish(fmt.Sprintf("%s/%d", TopicCalibration, c.ID), 1, true, payload)
}

// PublishStatus sends the retained stream status.
func (p *RealPublisher) PublishStatus(s Status) error {
	payload, err := FormatStatus(s)
	if err != nil {
		return fmt.Errorf("format status: %w", err)
	}
	return p.publish(TopicStatus, 1, true, payload)
}

func (p *RealPublisher) publish(suffix string, qos byte, retained bool, payload []byte) error {
	topic := join(p.base, suffix)
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the client is connected to the broker.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close marks the keypad offline and disconnects from the broker.
func (p *RealPublisher) Close() error {
	err := p.PublishStatus(Status{At: time.Now(), Status: Offline})
	p.client.Disconnect(1000) // 1 second timeout
	return err
}
