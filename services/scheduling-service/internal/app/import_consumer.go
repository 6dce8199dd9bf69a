package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/leadsched/libs/kafkax"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TopicImportPlacement carries records the ingestion pipeline wants placed
// on the calendar. Ingestion itself (CSV/Excel parsing, eligibility) lives
// upstream; this consumer only does scheduling reconciliation.
const TopicImportPlacement = "crm.import.lead_placement.v1"

type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

type ImportConsumer struct {
	reader *kafka.Reader
	logger *slog.Logger
	inbox  Inbox
	flows  *Flows
	actor  model.Actor
}

type ImportConsumerConfig struct {
	Brokers string
	GroupID string
}

func NewImportConsumer(logger *slog.Logger, inboxRepo Inbox, flows *Flows, cfg ImportConsumerConfig) *ImportConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.ParseBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    TopicImportPlacement,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &ImportConsumer{
		reader: reader,
		logger: logger,
		inbox:  inboxRepo,
		flows:  flows,
		actor:  model.SystemActor("import-reconciler"),
	}
}

type importPlacementPayload struct {
	SubjectKind   string `json:"subject_kind"`
	SubjectID     string `json:"subject_id"`
	AgentID       string `json:"agent_id"`
	PreferredDate string `json:"preferred_date"` // YYYY-MM-DD
	Notes         string `json:"notes"`
}

func (c *ImportConsumer) Run(ctx context.Context) {
	defer c.reader.Close()

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(1 * time.Second)
			continue
		}

		ctxMsg := kafkax.ContextFromMessage(ctx, msg)
		ctxSpan, span := otel.Tracer("kafka").Start(ctxMsg, "kafka.consume",
			trace.WithAttributes(
				attribute.String("messaging.system", "kafka"),
				attribute.String("messaging.destination", msg.Topic),
			),
		)
		c.handle(ctxSpan, span, msg)
		span.End()
	}
}

func (c *ImportConsumer) handle(ctx context.Context, span trace.Span, msg kafka.Message) {
	meta := kafkax.MetaOf(msg)

	fresh, err := c.inbox.Record(ctx, meta.ID, meta.Type)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err)
		span.RecordError(err)
		return
	}
	if !fresh {
		return
	}

	var payload importPlacementPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		c.logger.Error("malformed import placement", "err", err, "event_id", meta.ID)
		span.RecordError(err)
		return
	}
	preferred, err := time.Parse("2006-01-02", payload.PreferredDate)
	if err != nil {
		c.logger.Error("bad preferred_date in import placement",
			"value", payload.PreferredDate, "event_id", meta.ID)
		return
	}

	result := c.flows.ReconcileImport(ctx, c.actor, ImportRecord{
		Subject:       model.Subject{Kind: model.SubjectKind(payload.SubjectKind), ID: payload.SubjectID},
		AgentID:       payload.AgentID,
		PreferredDate: preferred,
		Notes:         payload.Notes,
	})
	if failed := result.FailedStep(); failed != nil {
		c.logger.Warn("import placement incomplete; manual reconciliation required",
			"subject", payload.SubjectID,
			"failed_step", failed.Name,
			"rollback_attempted", result.RollbackAttempted,
			"err", failed.Err)
		return
	}
	c.logger.Info("import placement reconciled", "subject", payload.SubjectID)
}
