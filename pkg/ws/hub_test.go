package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readFrame(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no frame received")
	}
	return Message{}
}

func TestHubSendsInitDataToNewClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	hub.SetInitDataProvider(func() *InitData {
		return &InitData{Vehicles: []string{"LGXC76C40N0123456"}}
	})
	go hub.Run()

	c := NewClient(hub, nil)
	c.Register()

	msg := readFrame(t, c)
	assert.Equal(t, MsgTypeInit, msg.Type)
}

func TestHubProviderSetWhileRunning(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	hub.SetInitDataProvider(func() *InitData {
		return &InitData{}
	})

	c := NewClient(hub, nil)
	c.Register()

	msg := readFrame(t, c)
	assert.Equal(t, MsgTypeInit, msg.Type)
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	go hub.Run()

	c1 := NewClient(hub, nil)
	c2 := NewClient(hub, nil)
	c1.Register()
	c2.Register()

	hub.BroadcastSnapshot("LGXC76C40N0123456", map[string]any{"soc": 80})

	for _, c := range []*Client{c1, c2} {
		msg := readFrame(t, c)
		assert.Equal(t, MsgTypeSnapshot, msg.Type)
		assert.Equal(t, "LGXC76C40N0123456", msg.VIN)
	}
}
