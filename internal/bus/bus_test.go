package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a := b.Subscribe()
	c := b.Subscribe()
	defer b.Unsubscribe(a)
	defer b.Unsubscribe(c)

	b.Publish(Event{Resource: ResourceLayers, Action: "added", ID: "fill"})

	for _, ch := range []chan Event{a, c} {
		select {
		case ev := <-ch:
			assert.Equal(t, "fill", ev.ID)
		default:
			t.Fatal("expected event")
		}
	}
}

func TestUnsubscribeClosesOnce(t *testing.T) {
	b := New()
	ch := b.Subscribe()
	b.Unsubscribe(ch)
	b.Unsubscribe(ch)

	_, open := <-ch
	require.False(t, open)
}

func TestNilBusDrops(t *testing.T) {
	var b *Bus
	assert.NotPanics(t, func() { b.Publish(Event{Resource: ResourceMode}) })
}
