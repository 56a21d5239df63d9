package presence_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artmarket_chat/internal/presence"
)

type fakeChannel struct {
	id     string
	mu     sync.Mutex
	closed bool
}

func (c *fakeChannel) ID() string { return c.id }

func (c *fakeChannel) Send([]byte) bool { return true }

func (c *fakeChannel) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func ids(chans []presence.Channel) []string {
	res := make([]string, 0, len(chans))
	for _, ch := range chans {
		res = append(res, ch.ID())
	}
	return res
}

func TestBindMultipleChannels(t *testing.T) {
	r := presence.NewRegistry()
	tab1 := &fakeChannel{id: "c1"}
	tab2 := &fakeChannel{id: "c2"}

	r.Bind("alice", tab1)
	r.Bind("alice", tab2)

	assert.ElementsMatch(t, []string{"c1", "c2"}, ids(r.ChannelsFor("alice")))
	assert.True(t, r.IsOnline("alice"))
	assert.Equal(t, 2, r.Len())
	assert.Empty(t, r.ChannelsFor("bob"))

	user, last, ok := r.Unbind(tab1)
	require.True(t, ok)
	assert.Equal(t, "alice", user)
	assert.False(t, last)
	assert.Equal(t, []string{"c2"}, ids(r.ChannelsFor("alice")))

	_, last, ok = r.Unbind(tab2)
	require.True(t, ok)
	assert.True(t, last)
	assert.False(t, r.IsOnline("alice"))
	assert.Empty(t, r.OnlineUsers())
}

func TestUnbindUnknownChannel(t *testing.T) {
	r := presence.NewRegistry()
	_, _, ok := r.Unbind(&fakeChannel{id: "ghost"})
	assert.False(t, ok)
}

func TestRebindMovesChannel(t *testing.T) {
	r := presence.NewRegistry()
	ch := &fakeChannel{id: "c1"}

	r.Bind("alice", ch)
	r.Bind("bob", ch)

	assert.Empty(t, r.ChannelsFor("alice"))
	assert.Equal(t, []string{"c1"}, ids(r.ChannelsFor("bob")))
	user, ok := r.UserOf("c1")
	require.True(t, ok)
	assert.Equal(t, "bob", user)
	assert.Equal(t, []string{"bob"}, r.OnlineUsers())
}

func TestChannelsForIsSnapshot(t *testing.T) {
	r := presence.NewRegistry()
	r.Bind("alice", &fakeChannel{id: "c1"})

	snap := r.ChannelsFor("alice")
	r.Bind("alice", &fakeChannel{id: "c2"})
	assert.Len(t, snap, 1)
}

func TestCloseAllKeepsBindings(t *testing.T) {
	r := presence.NewRegistry()
	a := &fakeChannel{id: "a"}
	b := &fakeChannel{id: "b"}
	r.Bind("alice", a)
	r.Bind("bob", b)

	r.CloseAll()

	assert.True(t, a.isClosed())
	assert.True(t, b.isClosed())
	assert.Equal(t, 2, r.Len(), "owners unbind on their own")
}

func TestConcurrentBindUnbind(t *testing.T) {
	r := presence.NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			ch := &fakeChannel{id: fmt.Sprintf("c%d", i)}
			user := fmt.Sprintf("u%d", i%5)
			r.Bind(user, ch)
			_ = r.ChannelsFor(user)
			r.Unbind(ch)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.OnlineUsers())
}

func TestLocalDirectory(t *testing.T) {
	r := presence.NewRegistry()
	d := presence.NewLocalDirectory(r)
	ctx := context.Background()

	online, err := d.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, online)

	r.Bind("alice", &fakeChannel{id: "c1"})
	online, err = d.IsOnline(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, online)
}

func TestBuildPresenceKey(t *testing.T) {
	assert.Equal(t, "chat:presence:u-42", presence.BuildPresenceKey("u-42"))
}
