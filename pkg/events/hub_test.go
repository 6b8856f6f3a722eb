package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battstat/pkg/powerinfo"
)

func TestHubPublish(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()
	defer unsubscribe()

	want := StatusChangedEvent{
		Status:  powerinfo.CompositeStatus{Present: true, Percent: 42, Minutes: 17},
		State:   "discharging",
		Backend: "acpi",
		Ts:      1700000000,
	}
	require.NoError(t, h.Publish(StatusChanged, want))

	select {
	case ev := <-ch:
		assert.Equal(t, StatusChanged, ev.Name)
		got, err := DecodeAs[StatusChangedEvent](ev)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestHubDropsForSlowSubscribers(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		require.NoError(t, h.Publish(StatusChanged, i))
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, h.Subscribers())

	_, ok := <-ch
	assert.False(t, ok)
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	ch, unsubscribe := h.Subscribe()

	h.Close()
	h.Close()
	_, ok := <-ch
	assert.False(t, ok)
	unsubscribe()

	late, _ := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
	assert.NoError(t, h.Publish(StatusChanged, 1))
}

func TestPublishUnencodable(t *testing.T) {
	h := NewHub()
	assert.Error(t, h.Publish(StatusChanged, make(chan int)))

	var nilHub *Hub
	assert.NoError(t, nilHub.Publish(StatusChanged, 1))
}

func TestDecodeAsEmpty(t *testing.T) {
	got, err := DecodeAs[StatusChangedEvent](Event{Name: StatusChanged})
	require.NoError(t, err)
	assert.Equal(t, StatusChangedEvent{}, got)
}
