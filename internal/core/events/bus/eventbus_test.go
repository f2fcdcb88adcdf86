package bus

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testObserver struct {
	publishCount   int
	deliveredCount int
	lastErr        error
}

func (o *testObserver) OnPublish(_ string, _ Event) {
	o.publishCount++
}

func (o *testObserver) OnDelivered(_ string, handlers int, err error, _ int64) {
	o.deliveredCount += handlers
	o.lastErr = err
}

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	var got Event
	_, err := b.Subscribe("unit.aimed", func(e Event) error {
		got = e
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, b.Publish(NewEvent("unit.aimed", "gun-1", 42.0, 0, nil)))
	require.NotNil(t, got)
	assert.Equal(t, "gun-1", got.Source())
	assert.Equal(t, 42.0, got.Data())
}

func TestSubscribeValidation(t *testing.T) {
	b := New()
	_, err := b.Subscribe("x", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
	_, err = b.Subscribe("", func(Event) error { return nil })
	assert.ErrorIs(t, err, ErrEmptyType)
}

func TestDeliveryOrderAndWildcard(t *testing.T) {
	b := New()
	var order []string
	record := func(name string) EventHandler {
		return func(Event) error {
			order = append(order, name)
			return nil
		}
	}

	_, _ = b.Subscribe("a", record("first"))
	_, _ = b.Subscribe(AnyEvent, record("any"))
	_, _ = b.Subscribe("a", record("third"))
	_, _ = b.Subscribe("b", record("other"))

	require.NoError(t, b.Publish(NewEvent("a", "t", nil, 0, nil)))
	assert.Equal(t, []string{"first", "any", "third"}, order)

	order = nil
	require.NoError(t, b.Publish(NewEvent("b", "t", nil, 0, nil)))
	assert.Equal(t, []string{"any", "other"}, order)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var calls int
	sub, err := b.Subscribe("x", func(Event) error { calls++; return nil })
	require.NoError(t, err)

	_ = b.Publish(NewEvent("x", "t", nil, 0, nil))
	require.NoError(t, b.Unsubscribe(sub))
	require.NoError(t, sub.Cancel())
	_ = b.Publish(NewEvent("x", "t", nil, 0, nil))

	assert.Equal(t, 1, calls)
	assert.False(t, sub.IsActive())
	assert.NoError(t, b.Unsubscribe(nil))
}

func TestHandlerMaySubscribeDuringDelivery(t *testing.T) {
	b := New()
	var inner atomic.Int32
	_, _ = b.Subscribe("x", func(Event) error {
		_, err := b.Subscribe("y", func(Event) error { inner.Add(1); return nil })
		return err
	})

	require.NoError(t, b.Publish(NewEvent("x", "t", nil, 0, nil)))
	require.NoError(t, b.Publish(NewEvent("y", "t", nil, 0, nil)))
	assert.EqualValues(t, 1, inner.Load())
}

func TestPublishJoinsErrors(t *testing.T) {
	b := New()
	e1, e2 := errors.New("one"), errors.New("two")
	_, _ = b.Subscribe("x", func(Event) error { return e1 })
	_, _ = b.Subscribe("x", func(Event) error { return e2 })

	obs := &testObserver{}
	b.AddObserver(obs)
	err := b.Publish(NewEvent("x", "t", nil, 0, nil))
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
	assert.ErrorIs(t, obs.lastErr, e1)
	assert.EqualValues(t, 1, b.GetMetrics().Errors)
}

func TestObserverMetricsOptional(t *testing.T) {
	b := New()
	_, _ = b.Subscribe("e", func(e Event) error { return nil })
	_ = b.Publish(NewEvent("e", "s", nil, 0, nil))
	assert.Zero(t, b.GetMetrics().Published)

	obs := &testObserver{}
	b.AddObserver(obs)
	_ = b.Publish(NewEvent("e", "s", nil, 0, nil))

	m := b.GetMetrics()
	assert.EqualValues(t, 1, m.Published)
	assert.EqualValues(t, 1, m.DeliveredHandlers)
	assert.EqualValues(t, 1, m.SubscribersActive)
	assert.Equal(t, 1, obs.publishCount)
	assert.Equal(t, 1, obs.deliveredCount)

	b.RemoveObserver(obs)
	_ = b.Publish(NewEvent("e", "s", nil, 0, nil))
	assert.Equal(t, 1, obs.publishCount)
}
