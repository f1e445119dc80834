package hub

import (
	"fmt"
	"slices"
)

type ViewKind string

const (
	// ViewUser receives events addressed to the user, it is subscribed on
	// connect and stays for the whole connection.
	ViewUser ViewKind = "user"
	// ViewServerList covers every server in the sidebar, so it is additive.
	ViewServerList ViewKind = "server_list"

	ViewServer  ViewKind = "server"
	ViewChannel ViewKind = "channel"
	ViewDM      ViewKind = "dm"
)

// replaces lists which views have to be torn down when a view of the given
// kind is opened. The home/DM view and the server+channel view exclude each
// other, and a different server also closes the open channel.
var replaces = map[ViewKind][]ViewKind{
	ViewServer:  {ViewServer, ViewChannel, ViewDM},
	ViewChannel: {ViewChannel, ViewDM},
	ViewDM:      {ViewDM, ViewServer, ViewChannel},
}

// nested lists the views that live inside a view of the given kind. They
// survive when the same view is opened again.
var nested = map[ViewKind][]ViewKind{
	ViewServer: {ViewChannel},
}

func Topic(kind ViewKind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// views is the per client registry of active subscriptions.
type views struct {
	active   map[ViewKind]string
	additive map[string]struct{}
}

func newViews() views {
	return views{
		active:   make(map[ViewKind]string),
		additive: make(map[string]struct{}),
	}
}

// switchTo records topic as the active view of kind and returns the topics
// that have to be unsubscribed and subscribed to get there.
func (v *views) switchTo(kind ViewKind, topic string) (stale []string, fresh []string) {
	if kind == ViewServerList || kind == ViewUser {
		if _, ok := v.additive[topic]; ok {
			return nil, nil
		}
		v.additive[topic] = struct{}{}
		return nil, []string{topic}
	}

	if v.active[kind] == topic {
		// only the views this one excludes have to go
		for _, k := range replaces[kind] {
			if k != kind && !slices.Contains(nested[kind], k) {
				if old, ok := v.active[k]; ok {
					stale = append(stale, old)
					delete(v.active, k)
				}
			}
		}
		return stale, nil
	}

	for _, k := range replaces[kind] {
		if old, ok := v.active[k]; ok {
			stale = append(stale, old)
			delete(v.active, k)
		}
	}

	v.active[kind] = topic
	return stale, []string{topic}
}

func (v *views) leave(topic string) bool {
	if _, ok := v.additive[topic]; ok {
		delete(v.additive, topic)
		return true
	}
	for k, t := range v.active {
		if t == topic {
			delete(v.active, k)
			return true
		}
	}
	return false
}

func (v *views) current(kind ViewKind) (string, bool) {
	topic, ok := v.active[kind]
	return topic, ok
}
