package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaskManager_AwaitConsumerReturnsOnceClosed(t *testing.T) {
	m := newTaskManager()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := m.register("t1", cancel)

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(done)
	}()

	assert.True(t, m.awaitConsumer("t1", time.Second))
}

func TestTaskManager_AwaitConsumerTimesOut(t *testing.T) {
	m := newTaskManager()
	_, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.register("t1", cancel)

	assert.False(t, m.awaitConsumer("t1", 10*time.Millisecond))
}

func TestTaskManager_AwaitConsumerOnForgottenTurnIsTrue(t *testing.T) {
	m := newTaskManager()
	assert.True(t, m.awaitConsumer("never-registered", time.Millisecond))
}

func TestTaskManager_CancelIsIdempotentAndSafeOnUnknown(t *testing.T) {
	m := newTaskManager()
	called := 0
	ctx, cancel := context.WithCancel(context.Background())
	wrapped := func() { called++; cancel() }
	m.register("t1", wrapped)

	m.cancel("t1")
	m.cancel("t1")
	m.cancel("does-not-exist")

	assert.Equal(t, 2, called)
	<-ctx.Done()
}

func TestTaskManager_Forget(t *testing.T) {
	m := newTaskManager()
	_, cancel := context.WithCancel(context.Background())
	m.register("t1", cancel)
	m.forget("t1")
	assert.True(t, m.awaitConsumer("t1", time.Millisecond))
}
