package nodes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Farm-Advisor/agent/contract"
)

// PublishEvents announces committed advice. Delivery failures are logged.
func PublishEvents(ctx context.Context, in *GraphState, publisher contractx.Publisher) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if publisher == nil {
		return in, nil
	}

	for _, ev := range in.Events {
		if err := publisher.Publish(ctx, ev); err != nil {
			log.Error().Err(err).Str("kind", ev.Kind).Int64("record_id", ev.RecordID).Msg("event publish failed")
		}
	}
	return in, nil
}
