package obs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueGetSet(t *testing.T) {
	v := NewValue(10)
	assert.Equal(t, 10, v.Get())

	v.Set(20)
	assert.Equal(t, 20, v.Get())
}

func TestValueSubscribeDelivers(t *testing.T) {
	v := NewValue("a")
	ch, cancel := v.Subscribe(4)
	defer cancel()

	v.Set("b")
	v.Set("c")

	assert.Equal(t, "b", <-ch)
	assert.Equal(t, "c", <-ch)
}

func TestValueSlowSubscriberDoesNotBlockWriter(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Subscribe(1)
	defer cancel()

	// nobody drains ch; every Set past the buffer must still return
	for i := 1; i <= 100; i++ {
		v.Set(i)
	}

	assert.Equal(t, 100, v.Get())
	assert.Equal(t, 1, <-ch) // only the first emission fit the buffer
}

func TestValuePerSubscriberOrdering(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Subscribe(8)
	defer cancel()

	for i := 1; i <= 5; i++ {
		v.Set(i)
	}
	for i := 1; i <= 5; i++ {
		assert.Equal(t, i, <-ch)
	}
}

func TestValueCancelStopsDelivery(t *testing.T) {
	v := NewValue(0)
	ch, cancel := v.Subscribe(4)
	cancel()

	v.Set(1)

	select {
	case got := <-ch:
		t.Fatalf("unexpected delivery after cancel: %d", got)
	default:
	}
}

func TestValueCloseDropsSubscribersButKeepsGet(t *testing.T) {
	v := NewValue(1)
	ch, cancel := v.Subscribe(4)
	defer cancel()

	v.Close()
	v.Set(2)

	assert.Equal(t, 2, v.Get())
	select {
	case got := <-ch:
		t.Fatalf("unexpected delivery after close: %d", got)
	default:
	}
}

func TestOpt(t *testing.T) {
	assert.False(t, None[int]().OK)
	assert.True(t, Some(5).OK)
	assert.Equal(t, 5, Some(5).Val)

	x := 7
	assert.Equal(t, Some(7), Ptr(&x))
	assert.Equal(t, None[int](), Ptr[int](nil))
}
