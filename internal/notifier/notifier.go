// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package notifier implements the in-process change bus that tells
// consumers an entity collection changed for a tenant.
package notifier

import (
	"sync"
	"time"

	"github.com/MKhiriev/go-pos-keeper/models"
)

// Handler receives change notifications.
type Handler func(models.Change)

// ChangeNotifier publishes [models.Change] events to subscribers.
type ChangeNotifier interface {
	// Publish invokes every current handler synchronously, in registration
	// order, on the calling goroutine.
	Publish(kind models.EntityKind, tenantID string)

	// Subscribe registers h and returns a function that removes it.
	Subscribe(h Handler) (unsubscribe func())
}

type subscription struct {
	id      int64
	handler Handler
}

type changeNotifier struct {
	mu     sync.RWMutex
	nextID int64
	subs   []subscription

	now func() time.Time
}

// NewChangeNotifier returns an empty notifier.
func NewChangeNotifier() ChangeNotifier {
	return &changeNotifier{now: time.Now}
}

func (n *changeNotifier) Publish(kind models.EntityKind, tenantID string) {
	change := models.Change{Kind: kind, TenantID: tenantID, At: n.now().UTC()}

	// handlers run outside the lock so they may subscribe or unsubscribe
	n.mu.RLock()
	subs := make([]subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()

	for _, s := range subs {
		s.handler(change)
	}
}

func (n *changeNotifier) Subscribe(h Handler) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs = append(n.subs, subscription{id: id, handler: h})

	var once sync.Once
	return func() {
		once.Do(func() { n.unsubscribe(id) })
	}
}

func (n *changeNotifier) unsubscribe(id int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, s := range n.subs {
		if s.id == id {
			n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
			return
		}
	}
}
