package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestEmitDispatchesToSubscribers(t *testing.T) {
	bus := NewBus(zerolog.New(nil).Level(zerolog.Disabled))

	var got []any
	bus.Subscribe("tick", func(data any) { got = append(got, data) })
	bus.Subscribe("tick", func(data any) { got = append(got, data) })
	bus.Subscribe("other", func(data any) { t.Fatal("wrong event dispatched") })

	bus.Emit("tick", 42)

	assert.Equal(t, []any{42, 42}, got)
}

func TestEmitWithNoListenersIsNoOp(t *testing.T) {
	bus := NewBus(zerolog.New(nil).Level(zerolog.Disabled))
	bus.Emit("tick", nil)
}

func TestListenerPanicDoesNotBreakEmitter(t *testing.T) {
	bus := NewBus(zerolog.New(nil).Level(zerolog.Disabled))

	called := false
	bus.Subscribe("tick", func(data any) { panic("boom") })
	bus.Subscribe("tick", func(data any) { called = true })

	bus.Emit("tick", nil)

	assert.True(t, called)
}
