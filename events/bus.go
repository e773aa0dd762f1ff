// Package events carries cache change notifications from the fetch
// pipeline to whoever renders the photo galleries. Events are hints:
// a consumer re-pulls the photo set of the named marker instead of
// trusting any payload, so racing mutations cannot skew its view.
package events

import (
	"fmt"
	"strings"

	"bitbucket.org/kleinnic74/tourist/domain"

	"github.com/leandro-lugaresi/hub"
)

type Action string

const (
	PhotoInserted = Action("photo-inserted")
	PhotosCleared = Action("photos-cleared")
	MarkerDeleted = Action("marker-deleted")
	PageCompleted = Action("page-completed")
)

// CacheChange notifies that the photo set of a marker has mutated
type CacheChange struct {
	Marker domain.MarkerID `json:"marker"`
	Action Action          `json:"action"`
}

const (
	topicPrefix = "cache"
	channelCap  = 100
)

type Bus struct {
	hub *hub.Hub
}

func NewBus() *Bus {
	return &Bus{hub: hub.New()}
}

func (b *Bus) Publish(c CacheChange) {
	b.hub.Publish(hub.Message{
		Name:   topicFor(c.Marker),
		Fields: hub.Fields{"action": string(c.Action)},
	})
}

// Subscribe delivers all changes to the given marker's photo set. Each
// subscription reads from its own channel, so delivery to one
// subscriber is serialized and in publish order. A slow subscriber
// delays delivery, it never loses it: overflowing changes are held in
// a backlog, coalesced per marker and action, until the subscriber
// drains again.
func (b *Bus) Subscribe(id domain.MarkerID) *Subscription {
	return b.subscribe(topicFor(id))
}

// SubscribeAll delivers the changes of every marker
func (b *Bus) SubscribeAll() *Subscription {
	return b.subscribe(topicPrefix + ".*")
}

func (b *Bus) Close() {
	b.hub.Close()
}

type Subscription struct {
	bus    *Bus
	sub    hub.Subscription
	events chan CacheChange
}

func (b *Bus) subscribe(topic string) *Subscription {
	s := &Subscription{
		bus:    b,
		sub:    b.hub.Subscribe(channelCap, topic),
		events: make(chan CacheChange, channelCap),
	}
	go s.pump()
	return s
}

// pump forwards hub messages to the subscriber's channel. It is always
// ready to receive, so publishers are never held up by a slow
// subscriber: changes that do not fit queue up in the backlog and the
// backlog coalesces identical changes, which bounds it by the number of
// distinct markers and actions.
func (s *Subscription) pump() {
	defer close(s.events)
	var backlog []CacheChange
	for {
		if len(backlog) == 0 {
			m, ok := <-s.sub.Receiver
			if !ok {
				return
			}
			c := toChange(m)
			select {
			case s.events <- c:
			default:
				backlog = append(backlog, c)
			}
			continue
		}
		select {
		case m, ok := <-s.sub.Receiver:
			if !ok {
				// Cancelled, nobody is left to drain the backlog
				return
			}
			backlog = coalesce(backlog, toChange(m))
		case s.events <- backlog[0]:
			backlog = backlog[1:]
		}
	}
}

func coalesce(backlog []CacheChange, c CacheChange) []CacheChange {
	for _, b := range backlog {
		if b == c {
			return backlog
		}
	}
	return append(backlog, c)
}

// Events is closed once the subscription is cancelled
func (s *Subscription) Events() <-chan CacheChange {
	return s.events
}

// Cancel stops delivery. Cancelling a subscription to an already
// deleted marker is a no-op.
func (s *Subscription) Cancel() {
	s.bus.hub.Unsubscribe(s.sub)
}

func topicFor(id domain.MarkerID) string {
	return fmt.Sprintf("%s.%s", topicPrefix, id)
}

func toChange(m hub.Message) CacheChange {
	action, _ := m.Fields["action"].(string)
	return CacheChange{
		Marker: domain.MarkerID(strings.TrimPrefix(m.Name, topicPrefix+".")),
		Action: Action(action),
	}
}
