// Package store holds the client-side state for each resource domain: auth,
// dashboard, and keys. Stores are passive caches with reducer-style
// transitions: an operation marks the store loading, calls the server, and
// either replaces the cached snapshot wholesale or records a display error.
// Nothing is merged or reconciled; deletion is the only in-place list edit.
//
// Stores are explicit values handed to their callers, not package singletons.
// All methods are safe for concurrent use.
package store

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"
)

// ErrNotAuthenticated reports an operation that needs a session when none is
// held.
var ErrNotAuthenticated = errors.New("not authenticated")

// Publisher pushes advisory lifecycle events. pkg/bus implements it; a nil
// Publisher disables events entirely.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

const publishTimeout = 2 * time.Second

// publish fires an event without blocking the store transition that caused
// it. Failures are logged and swallowed.
func publish(logger *log.Logger, events Publisher, subject string, v any) {
	if events == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := events.Publish(ctx, subject, v); err != nil {
			logger.Printf("publish %s: %v", subject, err)
		}
	}()
}

// fetchGuard orders overlapping fetches of a single resource. Each fetch
// takes a ticket; a response is applied only while its ticket is still the
// newest issued, so the store reflects the most recently requested data
// rather than the most recently resolved response.
type fetchGuard struct {
	n atomic.Uint64
}

func (g *fetchGuard) begin() uint64 {
	return g.n.Add(1)
}

func (g *fetchGuard) current(ticket uint64) bool {
	return g.n.Load() == ticket
}
