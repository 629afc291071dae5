package publisher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tropicallease/adcontext/internal/ads"
)

func TestMemoryRecordsEvents(t *testing.T) {
	t.Parallel()

	pub := NewMemory()
	event := ads.ContextReadyEvent{
		URL:       "https://example.com/a",
		RunID:     "run-1",
		Topics:    []string{"outdoor"},
		CrawledAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.PublishContextReady(context.Background(), event))

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, event, events[0])

	// Events returns a copy.
	events[0].URL = "modified"
	assert.Equal(t, "https://example.com/a", pub.Events()[0].URL)
}

func TestNoOp(t *testing.T) {
	t.Parallel()
	assert.NoError(t, NewNoOp().PublishContextReady(context.Background(), ads.ContextReadyEvent{}))
}
