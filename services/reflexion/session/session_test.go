// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianReflexion/services/reflexion"
	"github.com/AleutianAI/AleutianReflexion/services/reflexion/graph"
)

// twoComponents builds A -call-> B with files a.go and b.go, where b.go
// depends on a.go. Nothing is mapped yet.
func twoComponents(t *testing.T) *reflexion.ReflexionGraph {
	t.Helper()
	g := graph.NewGraph("session")
	add := func(id string, s graph.Subgraph) *graph.Node {
		n := graph.NewNode(id, "Component")
		require.NoError(t, g.AddNode(n))
		require.NoError(t, n.SetSubgraph(s))
		return n
	}
	a := add("A", graph.SubgraphArchitecture)
	b := add("B", graph.SubgraphArchitecture)
	fa := add("a.go", graph.SubgraphImplementation)
	fb := add("b.go", graph.SubgraphImplementation)
	require.NoError(t, g.AddEdge(graph.NewEdge("s", a, b, "call")))
	require.NoError(t, g.AddEdge(graph.NewEdge("d", fb, fa, "call")))

	rg, err := reflexion.New(g, reflexion.WithLogger(quiet()))
	require.NoError(t, err)
	require.NoError(t, rg.Run(context.Background()))
	return rg
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func started(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s := New(twoComponents(t), append([]Option{WithLogger(quiet())}, opts...)...)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mapTo(from, to string) func(*reflexion.ReflexionGraph) error {
	return func(rg *reflexion.ReflexionGraph) error {
		f, _ := rg.Graph().GetNode(from)
		c, _ := rg.Graph().GetNode(to)
		_, err := rg.AddToMapping(f, c, false)
		return err
	}
}

func TestSession_DoMutatesGraph(t *testing.T) {
	ctx := context.Background()
	s := started(t)

	require.NoError(t, s.Do(ctx, mapTo("a.go", "B")))
	require.NoError(t, s.Do(ctx, mapTo("b.go", "A")))

	summary, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.EdgesIn(graph.StateConvergent))
	assert.Equal(t, 1, summary.DependenciesIn(graph.StateConvergent))
}

func TestSession_DoReturnsRequestError(t *testing.T) {
	ctx := context.Background()
	s := started(t)

	require.NoError(t, s.Do(ctx, mapTo("a.go", "B")))
	err := s.Do(ctx, mapTo("a.go", "A"))
	var already *reflexion.AlreadyExplicitlyMappedError
	assert.ErrorAs(t, err, &already)

	sentinel := errors.New("boom")
	assert.ErrorIs(t, s.Do(ctx, func(*reflexion.ReflexionGraph) error { return sentinel }), sentinel)
}

func TestSession_SerializesConcurrentRequests(t *testing.T) {
	ctx := context.Background()
	s := started(t, WithQueueSize(4))

	const workers, perWorker = 8, 50
	counter := 0
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				assert.NoError(t, s.Do(ctx, func(*reflexion.ReflexionGraph) error {
					counter++
					return nil
				}))
			}
		}()
	}
	wg.Wait()

	var got int
	require.NoError(t, s.Do(ctx, func(*reflexion.ReflexionGraph) error {
		got = counter
		return nil
	}))
	assert.Equal(t, workers*perWorker, got)
}

func TestSession_SnapshotIsIndependent(t *testing.T) {
	ctx := context.Background()
	s := started(t)
	require.NoError(t, s.Do(ctx, mapTo("a.go", "B")))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	fb, _ := snap.Graph().GetNode("b.go")
	ca, _ := snap.Graph().GetNode("A")
	_, err = snap.AddToMapping(fb, ca, false)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Summary().EdgesIn(graph.StateConvergent))

	summary, err := s.Summary(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.EdgesIn(graph.StateConvergent), "snapshot changes stay out of the session")
	assert.Equal(t, 1, summary.EdgesIn(graph.StateAbsent))
}

func TestSession_RecoversPanics(t *testing.T) {
	ctx := context.Background()
	s := started(t)
	before := testutil.ToFloat64(requestsTotal.WithLabelValues("panic"))

	err := s.Do(ctx, func(*reflexion.ReflexionGraph) error { panic("bad request") })
	assert.ErrorIs(t, err, ErrPanicked)
	assert.Equal(t, before+1, testutil.ToFloat64(requestsTotal.WithLabelValues("panic")))
	assert.Contains(t, err.Error(), "bad request")

	assert.NoError(t, s.Do(ctx, mapTo("a.go", "B")), "worker survives a panic")
}

func TestSession_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := New(twoComponents(t), WithLogger(quiet()))

	assert.ErrorIs(t, s.Do(ctx, mapTo("a.go", "B")), ErrNotStarted)
	require.NoError(t, s.Start(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "Close is idempotent")

	assert.ErrorIs(t, s.Do(ctx, mapTo("a.go", "B")), ErrClosed)
	_, err := s.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Start(ctx), ErrClosed)
}

func TestSession_CloseWithoutStart(t *testing.T) {
	s := New(twoComponents(t))
	assert.NoError(t, s.Close())
	assert.ErrorIs(t, s.Do(context.Background(), mapTo("a.go", "B")), ErrClosed)
}

func TestSession_StopsWhenStartContextIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(twoComponents(t), WithLogger(quiet()))
	require.NoError(t, s.Start(ctx))
	cancel()
	<-s.stopped

	assert.ErrorIs(t, s.Do(context.Background(), mapTo("a.go", "B")), ErrClosed)
	assert.NoError(t, s.Close(), "cancellation is not reported as a failure")
}

func TestSession_DoHonoursCallerContext(t *testing.T) {
	s := started(t, WithQueueSize(1))

	release := make(chan struct{})
	running := make(chan struct{})
	go func() {
		_ = s.Do(context.Background(), func(*reflexion.ReflexionGraph) error {
			close(running)
			<-release
			return nil
		})
	}()
	<-running

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Do(ctx, mapTo("a.go", "B")), context.Canceled)
	close(release)
}
