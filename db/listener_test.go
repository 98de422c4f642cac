package db

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnEventDispatchesToAllHandlers(t *testing.T) {
	l := NewListener(nil, "rms_events")

	var mu sync.Mutex
	var got []EventNotification
	done := make(chan struct{}, 2)

	record := func(n EventNotification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		done <- struct{}{}
	}
	l.OnEvent(record)
	l.OnEvent(record)

	n := EventNotification{Kind: "INSERT", EntityKind: "task", EntityID: "t1"}
	l.dispatch(n)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("handler did not run in time")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 2)
	assert.Equal(t, n, got[0])
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	l := NewListener(nil, "rms_events")
	assert.NotPanics(t, func() { l.Stop() })
}

func TestEventNotificationJSONRoundTrips(t *testing.T) {
	n := EventNotification{Kind: "DELETE", EntityKind: "resource", EntityID: "r1"}
	raw, err := json.Marshal(n)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"DELETE","entity_kind":"resource","entity_id":"r1"}`, string(raw))

	var back EventNotification
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, n, back)
}
