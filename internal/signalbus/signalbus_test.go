package signalbus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/curvesentinel/node/internal/config"
	"github.com/curvesentinel/node/pkg/observability"
)

func testBus() *Bus {
	logger := observability.NewLogger(config.ObservabilityConfig{
		ServiceName: "signalbus-test",
		LogLevel:    "error",
		LogFormat:   "json",
	})
	return New(config.NodeConfig{ID: "node-a", IntelChannelPrefix: "sentinel"}, nil, logger)
}

func TestStreamKeyNamespacesByPrefixAndChannel(t *testing.T) {
	b := testBus()
	assert.Equal(t, "sentinel:signals:new-launch", b.streamKey("new-launch"))
}

func TestSubscribeAccumulatesHandlersPerChannel(t *testing.T) {
	b := testBus()
	calls := 0
	b.Subscribe("threat-exit", func(ctx context.Context, sig Signal) error { calls++; return nil })
	b.Subscribe("threat-exit", func(ctx context.Context, sig Signal) error { calls++; return nil })

	assert.Len(t, b.handlers["threat-exit"], 2)
}

func TestDispatchSucceedsOnlyWhenEveryHandlerSucceeds(t *testing.T) {
	b := testBus()
	ok := []Handler{
		func(ctx context.Context, sig Signal) error { return nil },
		func(ctx context.Context, sig Signal) error { return nil },
	}
	assert.True(t, b.dispatch(context.Background(), "outcome", Signal{}, ok))

	mixed := []Handler{
		func(ctx context.Context, sig Signal) error { return nil },
		func(ctx context.Context, sig Signal) error { return errors.New("boom") },
	}
	assert.False(t, b.dispatch(context.Background(), "outcome", Signal{}, mixed))
}

func TestDispatchWithNoHandlersSucceedsTrivially(t *testing.T) {
	b := testBus()
	assert.True(t, b.dispatch(context.Background(), "outcome", Signal{}, nil))
}
