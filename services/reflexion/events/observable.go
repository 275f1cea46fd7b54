// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Observer receives change events.
type Observer interface {
	// OnNext is called once per event.
	OnNext(event ChangeEvent)

	// OnError is called when the producer reports a failure.
	OnError(err error)

	// OnCompleted is called once when the producer shuts down.
	OnCompleted()
}

// ObserverFunc adapts a function to the Observer interface. Errors and
// completion are ignored.
type ObserverFunc func(event ChangeEvent)

func (f ObserverFunc) OnNext(event ChangeEvent) { f(event) }

func (f ObserverFunc) OnError(error) {}

func (f ObserverFunc) OnCompleted() {}

type subscription struct {
	id       string
	observer Observer
	kinds    []EventKind
}

func (s *subscription) wants(kind EventKind) bool {
	return len(s.kinds) == 0 || slices.Contains(s.kinds, kind)
}

// Observable is an ordered list of observers.
//
// Description:
//
//	Observers are called in the order they subscribed. Observable tracks
//	whether a delivery is in progress so that producers can refuse
//	re-entrant mutations from within an observer.
//
// Thread Safety:
//
//	Subscribe and Unsubscribe are safe for concurrent use. Delivery happens
//	in the goroutine calling Notify.
type Observable struct {
	mu     sync.Mutex
	subs   []*subscription
	depth  atomic.Int32
	logger *slog.Logger
}

// NewObservable creates an Observable that logs observer panics to logger.
// A nil logger uses slog.Default().
func NewObservable(logger *slog.Logger) *Observable {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observable{logger: logger}
}

// Subscribe registers an observer.
//
// Inputs:
//
//	observer - Receives the events.
//	kinds    - Restricts delivery to these kinds (none = all kinds).
//
// Outputs:
//
//	string - Subscription ID for Unsubscribe.
func (o *Observable) Subscribe(observer Observer, kinds ...EventKind) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	sub := &subscription{id: uuid.NewString(), observer: observer, kinds: kinds}
	o.subs = append(o.subs, sub)
	return sub.id
}

// Unsubscribe removes a subscription. It reports whether the ID was known.
func (o *Observable) Unsubscribe(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	before := len(o.subs)
	o.subs = slices.DeleteFunc(o.subs, func(s *subscription) bool { return s.id == id })
	return len(o.subs) != before
}

// SubscriberCount returns the number of subscriptions.
func (o *Observable) SubscriberCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// Notifying reports whether a delivery is in progress.
func (o *Observable) Notifying() bool {
	return o.depth.Load() > 0
}

func (o *Observable) snapshot() []*subscription {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.subs)
}

// Notify delivers event to every interested observer before returning.
// Observers subscribing during delivery receive the next event.
func (o *Observable) Notify(event ChangeEvent) {
	o.depth.Add(1)
	defer o.depth.Add(-1)

	for _, sub := range o.snapshot() {
		if sub.wants(event.Kind()) {
			o.safeInvoke(sub, func() { sub.observer.OnNext(event) })
		}
	}
}

// NotifyError forwards err to every observer.
func (o *Observable) NotifyError(err error) {
	o.depth.Add(1)
	defer o.depth.Add(-1)

	for _, sub := range o.snapshot() {
		o.safeInvoke(sub, func() { sub.observer.OnError(err) })
	}
}

// Complete signals completion to every observer and drops all subscriptions.
func (o *Observable) Complete() {
	subs := o.snapshot()
	o.mu.Lock()
	o.subs = nil
	o.mu.Unlock()

	o.depth.Add(1)
	defer o.depth.Add(-1)
	for _, sub := range subs {
		o.safeInvoke(sub, sub.observer.OnCompleted)
	}
}

// safeInvoke runs call and logs a panic instead of propagating it, so one
// misbehaving observer cannot starve the ones after it.
func (o *Observable) safeInvoke(sub *subscription, call func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("change observer panicked",
				slog.String("subscription_id", sub.id),
				slog.Any("panic", r),
			)
		}
	}()
	call()
}
