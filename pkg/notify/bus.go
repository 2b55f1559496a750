package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const Topic = "support-widget.notices"

// Bus fans notices out to named handlers through an in-process watermill
// router. Handlers must be added before Run; notices published before the
// router is running are dropped. Notify blocks until every handler has
// processed the notice, so it must not be called from a handler.
type Bus struct {
	pubSub *gochannel.GoChannel
	router *message.Router
}

var _ Notifier = &Bus{}

func NewBus(logger zerolog.Logger) (*Bus, error) {
	wl := NewZerologAdapter(logger)
	// Publish waits for every handler to ack so notices arrive in order.
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            64,
		BlockPublishUntilSubscriberAck: true,
	}, wl)
	router, err := message.NewRouter(message.RouterConfig{}, wl)
	if err != nil {
		return nil, errors.Wrap(err, "notify: create router")
	}
	return &Bus{pubSub: pubSub, router: router}, nil
}

// AddHandler registers fn under name. A handler error is logged and the
// notice is not redelivered.
func (b *Bus) AddHandler(name string, fn func(Notice) error) {
	b.router.AddNoPublisherHandler(name, Topic, b.pubSub, ForwardFunc(fn))
}

func (b *Bus) Run(ctx context.Context) error {
	return b.router.Run(ctx)
}

// Running is closed once every handler is subscribed.
func (b *Bus) Running() chan struct{} {
	return b.router.Running()
}

func (b *Bus) Notify(n Notice) {
	if b == nil {
		return
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}
	payload, err := json.Marshal(n)
	if err != nil {
		log.Error().Err(err).Msg("notify: encode notice")
		return
	}
	if err := b.pubSub.Publish(Topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		log.Error().Err(err).Str("text", n.Text).Msg("notify: publish notice")
	}
}

func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	rErr := b.router.Close()
	pErr := b.pubSub.Close()
	if rErr != nil {
		return errors.Wrap(rErr, "notify: close router")
	}
	return errors.Wrap(pErr, "notify: close pubsub")
}

// ForwardFunc adapts fn to a watermill handler. Undecodable payloads are
// acked and skipped.
func ForwardFunc(fn func(Notice) error) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		defer msg.Ack()
		n, err := decode(msg.Payload)
		if err != nil {
			log.Error().Err(err).Str("payload", string(msg.Payload)).Msg("notify: failed to parse notice")
			return nil
		}
		if err := fn(n); err != nil {
			log.Warn().Err(err).Str("text", n.Text).Msg("notify: handler failed")
		}
		return nil
	}
}
