package broadcast_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/lexisync/internal/broadcast"
)

func TestHub_LatestValueWins(t *testing.T) {
	h := broadcast.New[int]()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(1)
	h.Publish(2)
	h.Publish(3)

	assert.Equal(t, 3, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected extra value %d", v)
	default:
	}
}

func TestHub_SubscribeReceivesCurrentValue(t *testing.T) {
	h := broadcast.New[string]()
	h.Publish("ready")

	ch, cancel := h.Subscribe()
	defer cancel()

	assert.Equal(t, "ready", <-ch)
	latest, ok := h.Latest()
	assert.True(t, ok)
	assert.Equal(t, "ready", latest)
}

func TestHub_CancelClosesChannel(t *testing.T) {
	h := broadcast.New[int]()
	ch, cancel := h.Subscribe()
	require.Equal(t, 1, h.Len())

	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, h.Len())

	h.Publish(5)
}

func TestHub_Close(t *testing.T) {
	h := broadcast.New[int]()
	a, cancelA := h.Subscribe()
	b, _ := h.Subscribe()

	h.Close()
	cancelA()

	_, openA := <-a
	_, openB := <-b
	assert.False(t, openA)
	assert.False(t, openB)

	late, _ := h.Subscribe()
	_, open := <-late
	assert.False(t, open)
}
