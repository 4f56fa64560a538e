package websocket

import (
	"context"
	"sync/atomic"
	"time"

	"chat-live/internal/models"
	"chat-live/internal/registry"
	"chat-live/internal/rooms"
	"chat-live/pkg/logger"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// PublishResult reports delivery stats for one publish.
type PublishResult struct {
	Recipients int
	Delivered  int
	Dropped    int
}

// Hub fans events out to the connections occupying a room. Membership is
// read from the registry at the moment of the call; a connection that joins
// concurrently may or may not see the event.
type Hub struct {
	registry *registry.Registry
	timeout  time.Duration
	workers  int
	log      zerolog.Logger
}

func NewHub(reg *registry.Registry, deliveryTimeout time.Duration, workers int) *Hub {
	if deliveryTimeout <= 0 {
		deliveryTimeout = 2 * time.Second
	}
	if workers <= 0 {
		workers = 16
	}
	return &Hub{
		registry: reg,
		timeout:  deliveryTimeout,
		workers:  workers,
		log:      logger.Module("hub"),
	}
}

// Publish delivers ev once to every connection in any of roomIDs. Per
// connection failures are logged and never returned.
func (h *Hub) Publish(ctx context.Context, ev models.Event, roomIDs ...rooms.ID) PublishResult {
	return h.PublishExcept(ctx, "", ev, roomIDs...)
}

// PublishExcept is Publish without delivery to the connection except.
func (h *Hub) PublishExcept(ctx context.Context, except registry.ConnID, ev models.Event, roomIDs ...rooms.ID) PublishResult {
	members := h.registry.Members(roomIDs...)
	if except != "" {
		kept := members[:0]
		for _, m := range members {
			if m.ConnID != except {
				kept = append(kept, m)
			}
		}
		members = kept
	}

	res := PublishResult{Recipients: len(members)}
	if len(members) == 0 {
		return res
	}

	frame, err := models.EncodeEvent(ev)
	if err != nil {
		h.log.Error().Err(err).Str("event", string(ev.Type())).Msg("encode event")
		res.Dropped = len(members)
		return res
	}

	// Deliveries outlive a cancelled caller; each is bounded by h.timeout.
	ctx = context.WithoutCancel(ctx)

	var delivered atomic.Int64
	p := pool.New().WithMaxGoroutines(h.workers)
	for _, m := range members {
		p.Go(func() {
			dctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()
			if err := m.Conn.Send(dctx, frame); err != nil {
				h.log.Warn().Err(err).
					Str("conn", string(m.ConnID)).
					Str("user", string(m.UserID)).
					Str("event", string(ev.Type())).
					Msg("delivery failed")
				return
			}
			delivered.Add(1)
		})
	}
	p.Wait()

	res.Delivered = int(delivered.Load())
	res.Dropped = res.Recipients - res.Delivered
	h.log.Debug().Str("event", string(ev.Type())).Int("recipients", res.Recipients).Int("dropped", res.Dropped).Msg("published")
	return res
}
