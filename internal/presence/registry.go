package presence

import (
	"sort"
	"sync"
)

// Channel is one live connection of a user session. Channel ids are unique
// across users.
type Channel interface {
	ID() string
	// Send queues data without blocking and reports whether it was accepted.
	Send(data []byte) bool
	Close()
}

// Registry maps user ids to their currently connected channels. A user may
// hold any number of channels at once (several tabs or devices).
type Registry struct {
	mu        sync.RWMutex
	byChannel map[string]binding
	byUser    map[string]map[string]Channel
}

type binding struct {
	userID  string
	channel Channel
}

func NewRegistry() *Registry {
	return &Registry{
		byChannel: make(map[string]binding),
		byUser:    make(map[string]map[string]Channel),
	}
}

// Bind registers ch under userID. Rebinding a channel moves it.
func (r *Registry) Bind(userID string, ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byChannel[ch.ID()]; ok {
		r.removeLocked(prev.userID, ch.ID())
	}
	r.byChannel[ch.ID()] = binding{userID: userID, channel: ch}
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]Channel)
	}
	r.byUser[userID][ch.ID()] = ch
}

// Unbind removes ch from whichever user holds it. It returns that user and
// whether ch was their last channel; ok is false if ch was not bound.
func (r *Registry) Unbind(ch Channel) (userID string, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byChannel[ch.ID()]
	if !ok {
		return "", false, false
	}
	last = r.removeLocked(b.userID, ch.ID())
	return b.userID, last, true
}

// ChannelsFor returns a snapshot of the user's channels.
func (r *Registry) ChannelsFor(userID string) []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chans := r.byUser[userID]
	if len(chans) == 0 {
		return nil
	}
	res := make([]Channel, 0, len(chans))
	for _, ch := range chans {
		res = append(res, ch)
	}
	return res
}

// UserOf returns the user a channel is bound to.
func (r *Registry) UserOf(channelID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byChannel[channelID]
	return b.userID, ok
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// OnlineUsers lists users with at least one channel, sorted.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]string, 0, len(r.byUser))
	for uid := range r.byUser {
		res = append(res, uid)
	}
	sort.Strings(res)
	return res
}

// Len returns the number of bound channels.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byChannel)
}

// CloseAll closes every channel. Bindings stay until each connection's
// owner calls Unbind.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	chans := make([]Channel, 0, len(r.byChannel))
	for _, b := range r.byChannel {
		chans = append(chans, b.channel)
	}
	r.mu.RUnlock()

	for _, ch := range chans {
		ch.Close()
	}
}

// removeLocked must be called with mu held.
func (r *Registry) removeLocked(userID, channelID string) (last bool) {
	delete(r.byChannel, channelID)
	chans, ok := r.byUser[userID]
	if !ok {
		return false
	}
	delete(chans, channelID)
	if len(chans) == 0 {
		delete(r.byUser, userID)
		return true
	}
	return false
}
