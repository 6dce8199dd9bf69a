package storage

import (
	"context"

	otelx "github.com/md-rashed-zaman/leadsched/libs/otel"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/outbox"
)

// InsertOutbox writes an event inside the ambient transaction, carrying the
// caller's trace context so the eventual consumer links its span back to the
// operation that caused the event.
func (s *Store) InsertOutbox(ctx context.Context, evt outbox.Event) error {
	traceparent, tracestate := otelx.PropagationFields(ctx)
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var rcd outbox.Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID,
			&rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	return records, rows.Err()
}

func (s *Store) MarkPublished(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.q(ctx).Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
