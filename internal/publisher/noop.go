// Package publisher contains ads.Publisher implementations that need no
// external broker.
package publisher

import (
	"context"

	"github.com/tropicallease/adcontext/internal/ads"
)

// NoOp discards every event. Used when no downstream consumers are
// configured.
type NoOp struct{}

// NewNoOp returns a NoOp publisher.
func NewNoOp() NoOp { return NoOp{} }

// PublishContextReady does nothing.
func (NoOp) PublishContextReady(_ context.Context, _ ads.ContextReadyEvent) error {
	return nil
}
