// Package db provides PostgreSQL LISTEN/NOTIFY support for real-time event streaming.
package db

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventNotification is the wire form of one kernel-level event
// (model.Event, flattened to strings), broadcast across process
// boundaries via PostgreSQL's LISTEN/NOTIFY so that multiple rms.System
// instances sharing one Catalog stay cache-coherent without polling.
type EventNotification struct {
	Kind       string `json:"kind"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
}

// EventHandler is called when an event notification is received.
type EventHandler func(event EventNotification)

// Listener subscribes to a PostgreSQL NOTIFY channel and dispatches
// EventNotification payloads to registered handlers.
type Listener struct {
	pool        *pgxpool.Pool
	channel     string
	handlers    []EventHandler
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	running     bool
	reconnectCh chan struct{}
}

// NewListener creates a new PostgreSQL LISTEN subscriber.
func NewListener(pool *pgxpool.Pool, channel string) *Listener {
	ctx, cancel := context.WithCancel(context.Background())
	return &Listener{
		pool:        pool,
		channel:     channel,
		handlers:    make([]EventHandler, 0),
		ctx:         ctx,
		cancel:      cancel,
		reconnectCh: make(chan struct{}, 1),
	}
}

// OnEvent registers a handler for incoming event notifications.
func (l *Listener) OnEvent(handler EventHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handler)
}

// Start begins listening for notifications.
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.mu.Unlock()

	go l.listenLoop()
	return nil
}

// Stop stops listening for notifications.
func (l *Listener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}

	l.running = false
	l.cancel()
}

// listenLoop maintains the LISTEN connection with reconnection support.
func (l *Listener) listenLoop() {
	for {
		select {
		case <-l.ctx.Done():
			return
		default:
			if err := l.listen(); err != nil {
				log.Printf("[Listener] Listen error: %v, reconnecting in 1s", err)
				select {
				case <-l.ctx.Done():
					return
				case <-time.After(time.Second):
					continue
				}
			}
		}
	}
}

// listen establishes a LISTEN connection and processes notifications.
func (l *Listener) listen() error {
	conn, err := l.pool.Acquire(l.ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(l.ctx, fmt.Sprintf("LISTEN %s", l.channel))
	if err != nil {
		return fmt.Errorf("failed to start LISTEN: %w", err)
	}

	log.Printf("[Listener] Listening on channel: %s", l.channel)

	for {
		notification, err := conn.Conn().WaitForNotification(l.ctx)
		if err != nil {
			return fmt.Errorf("notification wait error: %w", err)
		}

		var event EventNotification
		if err := json.Unmarshal([]byte(notification.Payload), &event); err != nil {
			log.Printf("[Listener] Failed to parse notification: %v", err)
			continue
		}

		l.dispatch(event)
	}
}

// dispatch sends event to all registered handlers.
func (l *Listener) dispatch(event EventNotification) {
	l.mu.RLock()
	handlers := make([]EventHandler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}

// Publish broadcasts n on channel via pg_notify. Payloads are capped by
// PostgreSQL at 8000 bytes; an EventNotification's three string fields
// comfortably fit every entity kind/id pair the kernel mints.
func Publish(ctx context.Context, pool *pgxpool.Pool, channel string, n EventNotification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal event notification: %w", err)
	}
	if _, err := pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(raw)); err != nil {
		return fmt.Errorf("pg_notify: %w", err)
	}
	return nil
}
