package cddt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// SlicePublisher publishes the scroller's current view to MQTT and accepts
// scroll commands. Topics, relative to the prefix:
//
//	{prefix}/slice        view metadata (JSON, retained)
//	{prefix}/slice/image  rendered view (PNG, retained)
//	{prefix}/scroll       integer step, subscribed
type SlicePublisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	render        RenderOptions
}

// NewSlicePublisher creates a publisher. A nil client disables publishing.
func NewSlicePublisher(client mqtt.Client, prefix string, render RenderOptions) *SlicePublisher {
	if prefix == "" {
		prefix = "cddtviz"
	}
	return &SlicePublisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
		render:        render,
	}
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *SlicePublisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *SlicePublisher) SetRetain(retain bool) {
	p.retain = retain
}

// Topic returns the full topic for a suffix
func (p *SlicePublisher) Topic(suffix string) string {
	return fmt.Sprintf("%s/%s", p.publishPrefix, suffix)
}

// PublishView publishes v's metadata and, unless the slice is empty, its
// rendered image.
func (p *SlicePublisher) PublishView(v View) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling view: %w", err)
	}
	if err := p.publish(p.Topic("slice"), payload); err != nil {
		return err
	}

	if v.Empty {
		Logf("[MQTT] slice %d is empty, skipping image", v.Index)
		return nil
	}

	img, err := RenderSliceView(v, p.render)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := EncodePNG(&buf, img); err != nil {
		return fmt.Errorf("encoding slice image: %w", err)
	}
	if err := p.publish(p.Topic("slice/image"), buf.Bytes()); err != nil {
		return err
	}

	Logf("[MQTT] published slice %d (theta=%v)", v.Index, v.Theta)
	return nil
}

func (p *SlicePublisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// SubscribeScroll listens on {prefix}/scroll. Each message payload is an
// integer step applied to scroller; the resulting view is published.
func (p *SlicePublisher) SubscribeScroll(scroller *Scroller) error {
	if p.client == nil {
		return fmt.Errorf("MQTT client not configured")
	}
	topic := p.Topic("scroll")
	token := p.client.Subscribe(topic, 1, p.scrollHandler(scroller))
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, token.Error())
	}
	Logf("[MQTT] subscribed to %s", topic)
	return nil
}

func (p *SlicePublisher) scrollHandler(scroller *Scroller) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		step, err := ParseScrollStep(string(msg.Payload()))
		if err != nil {
			Logf("[MQTT] ignoring scroll command on %s: %v", msg.Topic(), err)
			return
		}
		v, err := scroller.Scroll(step)
		if err != nil {
			Logf("[MQTT] scroll failed: %v", err)
			return
		}
		if err := p.PublishView(v); err != nil {
			Logf("[MQTT] publishing view: %v", err)
		}
	}
}

// ParseScrollStep parses a scroll command payload. An empty payload means +1.
func ParseScrollStep(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 1, nil
	}
	step, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid scroll step %q", s)
	}
	return step, nil
}
