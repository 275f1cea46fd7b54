// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session serializes access to a reflexion graph.
//
// A ReflexionGraph is not safe for concurrent use. A Session owns one and
// runs every request on a single worker goroutine, so callers on many
// goroutines can mutate and query it safely. Snapshot hands out
// independent clones for long running reads.
//
//	s := session.New(rg)
//	if err := s.Start(ctx); err != nil { ... }
//	defer s.Close()
//	err := s.Do(ctx, func(rg *reflexion.ReflexionGraph) error {
//	    _, err := rg.AddToMapping(file, component, false)
//	    return err
//	})
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion"
)

// DefaultQueueSize is the number of requests that may wait for the worker.
const DefaultQueueSize = 64

// Sentinel errors.
var (
	// ErrClosed is returned for requests after Close or after the worker
	// stopped.
	ErrClosed = errors.New("session closed")

	// ErrNotStarted is returned for requests before Start.
	ErrNotStarted = errors.New("session not started")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session already started")

	// ErrPanicked wraps a panic raised by a request.
	ErrPanicked = errors.New("request panicked")
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reflexion_session_requests_total",
	Help: "Requests executed by reflexion sessions by result",
}, []string{"result"})

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithQueueSize sets the request queue capacity. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

type request struct {
	fn     func(*reflexion.ReflexionGraph) error
	result chan error
}

// Session runs requests against one ReflexionGraph on a single worker.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Functions passed to Do must
//	not retain the graph after returning or call back into the Session.
type Session struct {
	rg        *reflexion.ReflexionGraph
	logger    *slog.Logger
	queueSize int

	mu      sync.RWMutex
	started bool
	closed  bool
	queue   chan request
	closing chan struct{}
	stopped chan struct{}
	group   *errgroup.Group

	closeOnce sync.Once
	closeErr  error
}

// New creates a Session for rg. The session owns rg from now on.
func New(rg *reflexion.ReflexionGraph, opts ...Option) *Session {
	s := &Session{
		rg:        rg,
		logger:    slog.Default(),
		queueSize: DefaultQueueSize,
		closing:   make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queue = make(chan request, s.queueSize)
	return s
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start launches the worker. Cancelling ctx stops the worker; pending and
// later requests then fail with ErrClosed.
//
// Outputs:
//
//	error - ErrAlreadyStarted or ErrClosed.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return ErrClosed
	case s.started:
		return ErrAlreadyStarted
	}
	s.started = true

	g, gctx := errgroup.WithContext(ctx)
	s.group = g
	g.Go(func() error {
		defer close(s.stopped)
		return s.work(gctx)
	})
	s.logger.Debug("reflexion session started", slog.Int("queue_size", s.queueSize))
	return nil
}

// Close stops accepting requests, lets the worker finish the queued ones
// and waits for it. It is idempotent and returns the worker's error, which
// is the context error when the Start context was cancelled.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		started := s.started
		s.mu.Unlock()

		close(s.closing)
		if !started {
			return
		}
		if err := s.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			s.closeErr = err
		}
		s.logger.Debug("reflexion session closed")
	})
	return s.closeErr
}

func (s *Session) work(ctx context.Context) error {
	for {
		select {
		case req := <-s.queue:
			req.result <- s.execute(req.fn)
		case <-s.closing:
			for {
				select {
				case req := <-s.queue:
					req.result <- s.execute(req.fn)
				default:
					return nil
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Session) execute(fn func(*reflexion.ReflexionGraph) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
			s.logger.Error("reflexion session request panicked", slog.Any("panic", r))
		}
		requestsTotal.WithLabelValues(resultLabel(err)).Inc()
	}()
	return fn(s.rg)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPanicked):
		return "panic"
	default:
		return "error"
	}
}

// =============================================================================
// Requests
// =============================================================================

// Do runs fn on the worker and returns its error.
//
// Description:
//
//	Requests run one at a time in submission order. When ctx is done
//	before the worker picks the request up, Do returns ctx.Err(); once
//	the request is running it completes even if ctx is cancelled, but Do
//	stops waiting for it.
//
// Outputs:
//
//	error - The error of fn, ErrNotStarted, ErrClosed, ErrPanicked or
//	        ctx.Err().
func (s *Session) Do(ctx context.Context, fn func(*reflexion.ReflexionGraph) error) error {
	req := request{fn: fn, result: make(chan error, 1)}

	s.mu.RLock()
	switch {
	case s.closed:
		s.mu.RUnlock()
		return ErrClosed
	case !s.started:
		s.mu.RUnlock()
		return ErrNotStarted
	}
	select {
	case s.queue <- req:
	case <-s.stopped:
		s.mu.RUnlock()
		return ErrClosed
	case <-ctx.Done():
		s.mu.RUnlock()
		return ctx.Err()
	}
	s.mu.RUnlock()

	select {
	case err := <-req.result:
		return err
	case <-s.stopped:
		select {
		case err := <-req.result:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns an independent clone of the graph taken on the worker.
// The clone is not part of the session and may be used freely.
func (s *Session) Snapshot(ctx context.Context) (*reflexion.ReflexionGraph, error) {
	var clone *reflexion.ReflexionGraph
	err := s.Do(ctx, func(rg *reflexion.ReflexionGraph) error {
		clone = rg.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return clone, nil
}

// Summary returns the current state summary.
func (s *Session) Summary(ctx context.Context) (reflexion.Summary, error) {
	var summary reflexion.Summary
	err := s.Do(ctx, func(rg *reflexion.ReflexionGraph) error {
		summary = rg.Summary()
		return nil
	})
	return summary, err
}
