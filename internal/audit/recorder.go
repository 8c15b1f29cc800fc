package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trustdoc/internal/platform/kafka/producer"
	dErrors "trustdoc/pkg/domain-errors"
)

// Mirror fans audit entries out to downstream consumers. Publishing is
// best-effort: the store remains the source of truth.
type Mirror interface {
	ProduceAsync(msg *producer.Message) error
}

// Recorder is the single write path for the audit trail. Record never fails
// silently: a store append failure is returned to the caller, because an
// unrecorded issuance or verification is a compliance gap.
type Recorder struct {
	store  Store
	logger *slog.Logger
	mirror Mirror
	topic  string
}

// Option configures the Recorder.
type Option func(*Recorder)

// WithLogger sets a logger for mirror error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

// WithKafkaMirror publishes a copy of every appended entry to the given topic.
func WithKafkaMirror(mirror Mirror, topic string) Option {
	return func(r *Recorder) {
		r.mirror = mirror
		r.topic = topic
	}
}

func NewRecorder(store Store, opts ...Option) *Recorder {
	r := &Recorder{store: store}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an entry to the trail, assigning its ID and timestamp when
// unset, then mirrors it to Kafka if configured.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if err := r.store.Append(ctx, &entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeAuditPersistenceFailure, "failed to persist audit entry")
	}

	r.publishMirror(entry)
	return nil
}

// Query returns entries in (timestamp, seq) order.
func (r *Recorder) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	return r.store.Query(ctx, filter)
}

func (r *Recorder) publishMirror(entry Entry) {
	if r.mirror == nil {
		return
	}

	payload, err := json.Marshal(mirrorEnvelope{
		ID:            entry.ID.String(),
		Action:        string(entry.Action),
		DocumentID:    entry.DocumentID.String(),
		ActorID:       entry.ActorID.String(),
		InstitutionID: entry.InstitutionID.String(),
		Metadata:      entry.Metadata,
		OriginIP:      entry.OriginIP,
		Timestamp:     entry.Timestamp,
	})
	if err != nil {
		if r.logger != nil {
			r.logger.Error("failed to marshal audit mirror payload", "error", err)
		}
		return
	}

	err = r.mirror.ProduceAsync(&producer.Message{
		Topic: r.topic,
		Key:   []byte(uuid.UUID(entry.InstitutionID).String()),
		Value: payload,
		Headers: map[string]string{
			"action": string(entry.Action),
		},
	})
	if err != nil && r.logger != nil {
		r.logger.Warn("audit mirror publish failed",
			"entry_id", entry.ID,
			"error", err,
		)
	}
}

type mirrorEnvelope struct {
	ID            string            `json:"id"`
	Action        string            `json:"action"`
	DocumentID    string            `json:"documentId,omitempty"`
	ActorID       string            `json:"actorId"`
	InstitutionID string            `json:"institutionId"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OriginIP      string            `json:"originIp,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}
