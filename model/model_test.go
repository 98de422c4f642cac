package model

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStringRoundTrip(t *testing.T) {
	kinds := []Kind{KindPipe, KindTask, KindResource, KindFileResource, KindVirtualResource, KindUnrunTask}
	for _, k := range kinds {
		parsed, ok := KindFromString(k.String())
		assert.True(t, ok, "kind %v", k)
		assert.Equal(t, k, parsed)
	}
}

func TestKindFromStringRejectsUnknown(t *testing.T) {
	_, ok := KindFromString("not-a-kind")
	assert.False(t, ok)
}

func TestKindStringUnknownValue(t *testing.T) {
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "INSERT", EventInsert.String())
	assert.Equal(t, "MODIFY", EventModify.String())
	assert.Equal(t, "DELETE", EventDelete.String())
	assert.Equal(t, "CONTENT_CHANGE", EventContentChange.String())
}

func TestNewIDIsUniqueAndHex(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 32)
	_, err := hex.DecodeString(a)
	assert.NoError(t, err)
}

func TestFullIDEqualityRequiresBothFields(t *testing.T) {
	a := FullID{Kind: KindTask, ID: "x"}
	b := FullID{Kind: KindResource, ID: "x"}
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, FullID{Kind: KindTask, ID: "x"})
}

func TestEntityFullIDMethods(t *testing.T) {
	p := &Pipe{ID: "p1"}
	assert.Equal(t, FullID{Kind: KindPipe, ID: "p1"}, p.FullID())

	task := &Task{ID: "t1"}
	assert.Equal(t, FullID{Kind: KindTask, ID: "t1"}, task.FullID())

	res := &Resource{ID: "r1"}
	assert.Equal(t, FullID{Kind: KindResource, ID: "r1"}, res.FullID())

	file := &FileResource{ID: "f1"}
	assert.Equal(t, FullID{Kind: KindFileResource, ID: "f1"}, file.FullID())
}

func TestResourceVolatileConsumedOnce(t *testing.T) {
	r := &Resource{ID: "r1", Volatile: true, HasContent: true}
	assert.False(t, r.VolatileConsumed())
	r.MarkVolatileConsumed()
	assert.True(t, r.VolatileConsumed())
}

func TestBindingReadyRequiresAllFixedArgsBound(t *testing.T) {
	ready := Binding{Args: []any{1, "x"}, Kwargs: map[string]any{"a": true}}
	assert.True(t, ready.Ready())

	pending := Binding{Args: []any{&VirtualResource{ID: "v1"}}}
	assert.False(t, pending.Ready())
}
