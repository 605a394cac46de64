package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flybeeper/routecast/internal/config"
	"github.com/flybeeper/routecast/pkg/utils"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient реализует только то, что нужно издателю
type fakeClient struct {
	mqtt.Client
	connected bool
	err       error
	sent      []published
}

func (c *fakeClient) IsConnected() bool { return c.connected }

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.sent = append(c.sent, published{topic: topic, qos: qos, payload: payload.([]byte)})
	return doneToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) { c.connected = false }

func testPublisher(client *fakeClient) *MQTTPublisher {
	cfg := &config.MQTTConfig{URL: "tcp://localhost:1883", TopicPrefix: "routecast/routes/"}
	return newMQTTPublisherWithClient(client, cfg, utils.NewNopLogger())
}

func TestMQTTPublisher_Publish(t *testing.T) {
	client := &fakeClient{connected: true}
	p := testPublisher(client)

	evt := RouteProcessed{RouteID: "r1", Samples: 12, Missing: 1, Provider: "open-meteo"}
	require.NoError(t, p.PublishRouteProcessed(context.Background(), evt))

	require.Len(t, client.sent, 1)
	assert.Equal(t, "routecast/routes/r1/processed", client.sent[0].topic)
	assert.Equal(t, byte(1), client.sent[0].qos)

	var decoded RouteProcessed
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &decoded))
	assert.Equal(t, evt.RouteID, decoded.RouteID)
	assert.Equal(t, 12, decoded.Samples)
}

func TestMQTTPublisher_NotConnected(t *testing.T) {
	client := &fakeClient{connected: false}
	p := testPublisher(client)

	err := p.PublishRouteProcessed(context.Background(), RouteProcessed{RouteID: "r1"})
	assert.Error(t, err)
	assert.Empty(t, client.sent)
}

func TestMQTTPublisher_PublishError(t *testing.T) {
	client := &fakeClient{connected: true, err: errors.New("broker gone")}
	p := testPublisher(client)

	err := p.PublishRouteProcessed(context.Background(), RouteProcessed{RouteID: "r1"})
	assert.ErrorContains(t, err, "broker gone")
}

func TestMQTTPublisher_Close(t *testing.T) {
	client := &fakeClient{connected: true}
	p := testPublisher(client)
	p.Close()
	assert.False(t, p.IsConnected())
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.PublishRouteProcessed(context.Background(), RouteProcessed{}))
	p.Close()
}
