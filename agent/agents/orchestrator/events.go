package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
	qstashx "github.com/tanpawarit/Chative-Farm-Advisor/pkg/qstash"
)

var _ contractx.Publisher = (*QStashPublisher)(nil)

// QStashPublisher forwards advice events to a QStash destination.
type QStashPublisher struct {
	client *qstashx.Client
}

func NewQStashPublisher(client *qstashx.Client) *QStashPublisher {
	return &QStashPublisher{client: client}
}

func (p *QStashPublisher) Publish(ctx context.Context, event contractx.Event) error {
	id, err := p.client.Publish(ctx, event)
	if err != nil {
		return err
	}
	log.Debug().Str("message_id", id).Str("kind", event.Kind).Msg("event published")
	return nil
}
