package notify

import (
	"context"
	"encoding/json"

	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/leadstate"
	"github.com/md-rashed-zaman/leadsched/services/scheduling-service/internal/outbox"
)

// TopicLeadStatusChanged is emitted for every lead status change caused by
// a qualifying transition. Topic name equals event type.
const TopicLeadStatusChanged = "crm.lead.status_changed.v1"

type OutboxInserter interface {
	InsertOutbox(ctx context.Context, evt outbox.Event) error
}

// OutboxTrigger implements leadstate.Trigger by enqueueing the change as an
// outbox event inside the caller's transaction. Publication to Kafka and
// delivery happen asynchronously, so notification latency can never block
// the status write.
type OutboxTrigger struct {
	repo OutboxInserter
}

func NewOutboxTrigger(repo OutboxInserter) *OutboxTrigger {
	return &OutboxTrigger{repo: repo}
}

type statusChangedPayload struct {
	SubjectKind string `json:"subject_kind"`
	SubjectID   string `json:"subject_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Source      string `json:"source"`
}

func (t *OutboxTrigger) LeadStatusChanged(ctx context.Context, change leadstate.Change) error {
	payload, err := json.Marshal(statusChangedPayload{
		SubjectKind: string(change.Subject.Kind),
		SubjectID:   change.Subject.ID,
		From:        string(change.From),
		To:          string(change.To),
		Source:      string(change.Source),
	})
	if err != nil {
		return err
	}
	return t.repo.InsertOutbox(ctx, outbox.Event{
		AggregateType: string(change.Subject.Kind),
		AggregateID:   change.Subject.ID,
		EventType:     TopicLeadStatusChanged,
		Payload:       payload,
	})
}
