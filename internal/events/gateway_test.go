package events_test

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artmarket_chat/internal/domain"
	"artmarket_chat/internal/events"
	"artmarket_chat/internal/presence"
)

type fakeChannel struct {
	id   string
	full bool

	mu   sync.Mutex
	sent [][]byte
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send(data []byte) bool {
	if c.full {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, data)
	return true
}

func (c *fakeChannel) Close() {}

func (c *fakeChannel) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]map[string]any, 0, len(c.sent))
	for _, raw := range c.sent {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(raw, &ev))
		res = append(res, ev)
	}
	return res
}

type fakeRelay struct {
	err        error
	recipients [][]string
}

func (r *fakeRelay) Publish(recipients []string, _ []byte) error {
	r.recipients = append(r.recipients, recipients)
	return r.err
}

func (r *fakeRelay) Close() error { return nil }

func TestNewMessageReachesEveryChannelOfBothParticipants(t *testing.T) {
	reg := presence.NewRegistry()
	gw := events.NewGateway(reg)

	aliceTab := &fakeChannel{id: "a1"}
	alicePhone := &fakeChannel{id: "a2"}
	bob := &fakeChannel{id: "b1"}
	carol := &fakeChannel{id: "c1"}
	reg.Bind("alice", aliceTab)
	reg.Bind("alice", alicePhone)
	reg.Bind("bob", bob)
	reg.Bind("carol", carol)

	gw.NewMessage(&domain.Message{
		ID:             "m1",
		ConversationID: "conv1",
		Seq:            1,
		SenderID:       "alice",
		Content:        "hi",
		CreatedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}, [2]string{"alice", "bob"})

	for _, ch := range []*fakeChannel{aliceTab, alicePhone, bob} {
		evs := ch.events(t)
		require.Len(t, evs, 1, ch.id)
		assert.Equal(t, events.TypeNewMessage, evs[0]["type"])
		payload := evs[0]["payload"].(map[string]any)
		assert.Equal(t, "m1", payload["id"])
		assert.Equal(t, "conv1", payload["conversation_id"])
		assert.Equal(t, "hi", payload["content"])
	}
	assert.Empty(t, carol.events(t))
}

func TestMessagesReadCarriesAbsoluteState(t *testing.T) {
	reg := presence.NewRegistry()
	gw := events.NewGateway(reg)
	alice := &fakeChannel{id: "a1"}
	reg.Bind("alice", alice)

	gw.MessagesRead("conv1", "bob", 7, [2]string{"alice", "bob"})

	evs := alice.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeMessagesRead, evs[0]["type"])
	assert.Equal(t, map[string]any{
		"conversation_id": "conv1",
		"reader_id":       "bob",
		"unread_count":    float64(0),
		"up_to_seq":       float64(7),
	}, evs[0]["payload"])
}

func TestTypingSkipsTypist(t *testing.T) {
	reg := presence.NewRegistry()
	gw := events.NewGateway(reg)
	alice := &fakeChannel{id: "a1"}
	bob := &fakeChannel{id: "b1"}
	reg.Bind("alice", alice)
	reg.Bind("bob", bob)

	gw.Typing("conv1", "alice", true, [2]string{"alice", "bob"})

	assert.Empty(t, alice.events(t))
	evs := bob.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeUserTyping, evs[0]["type"])
	assert.Equal(t, true, evs[0]["payload"].(map[string]any)["is_typing"])
}

func TestDeliverSkipsFullChannels(t *testing.T) {
	reg := presence.NewRegistry()
	gw := events.NewGateway(reg)
	slow := &fakeChannel{id: "slow", full: true}
	fast := &fakeChannel{id: "fast"}
	reg.Bind("alice", slow)
	reg.Bind("alice", fast)

	n := gw.Deliver([]string{"alice", "offline-user"}, []byte(`{"type":"x","payload":null}`))

	assert.Equal(t, 1, n)
	assert.Len(t, fast.events(t), 1)
}

func TestSendErrorTargetsOneChannel(t *testing.T) {
	reg := presence.NewRegistry()
	gw := events.NewGateway(reg)
	tab1 := &fakeChannel{id: "t1"}
	tab2 := &fakeChannel{id: "t2"}
	reg.Bind("alice", tab1)
	reg.Bind("alice", tab2)

	gw.SendError(tab1, "req-9", "message content cannot be empty")

	evs := tab1.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeError, evs[0]["type"])
	assert.Equal(t, map[string]any{
		"message":    "message content cannot be empty",
		"request_id": "req-9",
	}, evs[0]["payload"])
	assert.Empty(t, tab2.events(t))
}

func TestRelay(t *testing.T) {
	t.Run("PublishesInsteadOfLocalDelivery", func(t *testing.T) {
		reg := presence.NewRegistry()
		gw := events.NewGateway(reg)
		relay := &fakeRelay{}
		gw.UseRelay(relay)
		bob := &fakeChannel{id: "b1"}
		reg.Bind("bob", bob)

		gw.MessagesRead("conv1", "alice", 3, [2]string{"alice", "bob"})

		require.Len(t, relay.recipients, 1)
		assert.Equal(t, []string{"alice", "bob"}, relay.recipients[0])
		assert.Empty(t, bob.events(t), "the relay delivers to local channels on receipt")
	})

	t.Run("FallsBackToLocalOnFailure", func(t *testing.T) {
		reg := presence.NewRegistry()
		gw := events.NewGateway(reg)
		gw.UseRelay(&fakeRelay{err: errors.New("nats: connection closed")})
		bob := &fakeChannel{id: "b1"}
		reg.Bind("bob", bob)

		gw.MessagesRead("conv1", "alice", 3, [2]string{"alice", "bob"})

		assert.Len(t, bob.events(t), 1)
	})
}

func TestEncode(t *testing.T) {
	data, err := events.Encode(events.TypeUserTyping, events.TypingPayload{ConversationID: "c", UserID: "u", IsTyping: false})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"userTyping","payload":{"conversation_id":"c","user_id":"u","is_typing":false}}`, string(data))
}
