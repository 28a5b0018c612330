package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/internal/config"
	"github.com/mediabud/recsys/pkg/models"
)

const (
	EventModelPublished = "model.published"
	EventTrainingFailed = "training.failed"
)

// ModelEvent is emitted after every training attempt so surrounding systems
// (seeders, admin panels, downstream caches) can observe retrains.
type ModelEvent struct {
	Event       string             `json:"event"`
	ContentType models.ContentType `json:"content_type"`
	TrainingID  *uuid.UUID         `json:"training_id,omitempty"`
	Mode        models.ModelMode   `json:"mode,omitempty"`
	Reason      string             `json:"reason,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// MessageBus publishes model lifecycle events to Kafka. The engine consumes
// nothing: interactions are pulled as snapshots at training time.
type MessageBus struct {
	writer *kafka.Writer
	logger *logrus.Logger
}

func NewMessageBus(cfg *config.Config, logger *logrus.Logger) (*MessageBus, error) {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topics.ModelEvents,
		Balancer:     &kafka.Hash{}, // key by content type
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &MessageBus{
		writer: writer,
		logger: logger,
	}, nil
}

func (mb *MessageBus) ModelPublished(ctx context.Context, contentType models.ContentType, trainingID uuid.UUID, mode models.ModelMode) {
	mb.publish(ctx, ModelEvent{
		Event:       EventModelPublished,
		ContentType: contentType,
		TrainingID:  &trainingID,
		Mode:        mode,
		Timestamp:   time.Now().UTC(),
	})
}

func (mb *MessageBus) TrainingFailed(ctx context.Context, contentType models.ContentType, reason string) {
	mb.publish(ctx, ModelEvent{
		Event:       EventTrainingFailed,
		ContentType: contentType,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	})
}

func (mb *MessageBus) publish(ctx context.Context, event ModelEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		mb.logger.WithError(err).Error("Failed to marshal model event")
		return
	}

	message := kafka.Message{
		Key:   []byte(event.ContentType),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Event)},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Event delivery is best-effort; a broker outage must never fail a
	// training run.
	if err := mb.writer.WriteMessages(writeCtx, message); err != nil {
		mb.logger.WithError(err).WithFields(logrus.Fields{
			"event":        event.Event,
			"content_type": event.ContentType,
		}).Warn("Failed to publish model event")
		return
	}

	mb.logger.WithFields(logrus.Fields{
		"event":        event.Event,
		"content_type": event.ContentType,
	}).Debug("Model event published")
}

func (mb *MessageBus) Close() error {
	return mb.writer.Close()
}
