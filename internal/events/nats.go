package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/card-fund-service/internal/metrics"
	"github.com/card-fund-service/internal/model"
)

const flushTimeout = 5 * time.Second

// NATS publishes events as JSON on subjects of the form <prefix>.<kind>.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

// ConnectNATS dials the server at url with unlimited reconnects.
func ConnectNATS(url, prefix string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("cardfundd"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)
	return NewNATS(conn, prefix), nil
}

func NewNATS(conn *nats.Conn, prefix string) *NATS {
	return &NATS{conn: conn, prefix: prefix}
}

// Subject returns the subject an event of kind is published on.
func (n *NATS) Subject(kind model.EventKind) string {
	return n.prefix + "." + string(kind)
}

// Publish sends every event and flushes. Failures are logged and counted, never returned.
func (n *NATS) Publish(ctx context.Context, events []*model.Event) {
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			log.Error().Err(err).Str("event_id", e.ID.String()).Msg("failed to encode event")
			metrics.EventsPublished.WithLabelValues(string(e.Kind), "failed").Inc()
			continue
		}
		if err := n.conn.Publish(n.Subject(e.Kind), data); err != nil {
			log.Error().Err(err).Str("event_id", e.ID.String()).Str("kind", string(e.Kind)).Msg("failed to publish event")
			metrics.EventsPublished.WithLabelValues(string(e.Kind), "failed").Inc()
			continue
		}
		metrics.EventsPublished.WithLabelValues(string(e.Kind), "published").Inc()
	}
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := n.conn.FlushWithContext(flushCtx); err != nil {
		log.Warn().Err(err).Msg("nats flush failed")
	}
}

func (n *NATS) Close() {
	n.conn.Close()
}
