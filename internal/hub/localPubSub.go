package hub

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// LocalPubSub is the in process broker used in self-contained mode.
type LocalPubSub struct {
	sugar   *zap.SugaredLogger
	mutex   sync.RWMutex
	hashMap map[string][]*Client
}

func NewLocalPubSub(sugar *zap.SugaredLogger) *LocalPubSub {
	return &LocalPubSub{
		sugar:   sugar,
		hashMap: make(map[string][]*Client),
	}
}

func (ps *LocalPubSub) Attach(context.Context, *Client) error {
	return nil
}

func (ps *LocalPubSub) Detach(client *Client) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	for topic := range ps.hashMap {
		ps.remove(topic, client)
	}
}

func (ps *LocalPubSub) Subscribe(_ context.Context, client *Client, topics ...string) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	for _, topic := range topics {
		subscribed := false
		for _, c := range ps.hashMap[topic] {
			if c == client {
				subscribed = true
				break
			}
		}
		if !subscribed {
			ps.hashMap[topic] = append(ps.hashMap[topic], client)
		}
	}
	return nil
}

func (ps *LocalPubSub) Unsubscribe(_ context.Context, client *Client, topics ...string) error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	for _, topic := range topics {
		ps.remove(topic, client)
	}
	return nil
}

// remove expects the write lock to be held.
func (ps *LocalPubSub) remove(topic string, client *Client) {
	clients := ps.hashMap[topic]

	// this won't run in case topic doesn't exist since length will be 0
	for i := range clients {
		if clients[i] == client {
			clients[i] = clients[len(clients)-1]
			clients[len(clients)-1] = nil
			ps.hashMap[topic] = clients[:len(clients)-1]
			break
		}
	}

	// delete topic from map if no client is subscribed to it
	if len(ps.hashMap[topic]) == 0 {
		delete(ps.hashMap, topic)
	}
}

func (ps *LocalPubSub) Publish(_ context.Context, topic string, payload string) error {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()

	for _, client := range ps.hashMap[topic] {
		if !client.deliver(payload) {
			ps.sugar.Warnf("Dropped message on %s for session ID %d", topic, client.SessionID)
		}
	}
	return nil
}
