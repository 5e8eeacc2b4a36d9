// Package events delivers committed engine events to downstream consumers.
package events

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/card-fund-service/internal/metrics"
	"github.com/card-fund-service/internal/model"
)

// Log writes each event to the structured log. It is used when no event bus is configured.
type Log struct{}

func (Log) Publish(_ context.Context, events []*model.Event) {
	for _, e := range events {
		log.Info().
			Str("event_id", e.ID.String()).
			Str("kind", string(e.Kind)).
			Str("card_fund", e.CardFund).
			Interface("attributes", e.Attributes).
			Msg("event committed")
		metrics.EventsPublished.WithLabelValues(string(e.Kind), "logged").Inc()
	}
}
