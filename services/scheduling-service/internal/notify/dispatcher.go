package notify

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

type Inbox interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

// Directory resolves the recipient phone for a booking subject.
type Directory interface {
	SubjectPhone(ctx context.Context, subject model.Subject) (string, error)
}

// Dispatcher consumes lead status-changed events and feeds them to the
// configured sender. Every failure path logs and moves on: this is the
// best-effort end of the notification pipeline.
type Dispatcher struct {
	reader    *kafka.Reader
	logger    *slog.Logger
	inbox     Inbox
	directory Directory
	sender    Sender
}

type DispatcherConfig struct {
	Brokers string
	GroupID string
}

func NewDispatcher(logger *slog.Logger, inbox Inbox, directory Directory, sender Sender, cfg DispatcherConfig) *Dispatcher {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.ParseBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    TopicLeadStatusChanged,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Dispatcher{
		reader:    reader,
		logger:    logger,
		inbox:     inbox,
		directory: directory,
		sender:    sender,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	defer d.reader.Close()

	for {
		msg, err := d.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("kafka read error", "err", err)
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
		d.handle(ctxSpan, span, msg)
		span.End()
	}
}

func (d *Dispatcher) handle(ctx context.Context, span trace.Span, msg kafka.Message) {
	meta := kafkax.MetaOf(msg)

	ok, err := d.inbox.Record(ctx, meta.ID, meta.Type)
	if err != nil {
		d.logger.Error("inbox record failed", "err", err)
		span.RecordError(err)
		return
	}
	if !ok {
		d.logger.Info("duplicate event ignored", "event_id", meta.ID)
		return
	}

	var payload statusChangedPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		d.logger.Error("malformed status-changed payload", "err", err, "event_id", meta.ID)
		span.RecordError(err)
		return
	}

	templateRef, wants := TemplateFor(model.LeadStatus(payload.To))
	if !wants {
		return
	}

	subject := model.Subject{Kind: model.SubjectKind(payload.SubjectKind), ID: payload.SubjectID}
	phone, err := d.directory.SubjectPhone(ctx, subject)
	if err != nil {
		d.logger.Warn("recipient lookup failed; notification dropped",
			"subject", subject.ID, "err", err)
		return
	}
	if phone == "" {
		d.logger.Info("subject has no phone; notification skipped", "subject", subject.ID)
		return
	}

	params := map[string]string{
		"status": payload.To,
		"source": payload.Source,
	}
	if err := d.sender.Send(ctx, phone, templateRef, params); err != nil {
		d.logger.Warn("notification send failed",
			"provider", d.sender.ProviderID(), "subject", subject.ID, "err", err)
		span.RecordError(err)
	}
}
