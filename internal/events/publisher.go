package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/drivebot/core/config"
	"github.com/m3rciful/drivebot/core/logger"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const routingKeyUploadCompleted = "drivebot.upload.completed"

// UploadCompleted is published after a file lands in Drive.
type UploadCompleted struct {
	ID          string    `json:"id"`
	ChatID      int64     `json:"chat_id"`
	FileName    string    `json:"file_name"`
	Path        string    `json:"path"`
	DriveFileID string    `json:"drive_file_id"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Publisher emits upload lifecycle events to interested consumers.
// Publish failures never abort the upload flow; callers log and move on.
type Publisher interface {
	PublishUploadCompleted(ctx context.Context, ev UploadCompleted) error
	Close() error
}

// Nop is used when no broker is configured.
type Nop struct{}

func (Nop) PublishUploadCompleted(context.Context, UploadCompleted) error { return nil }

func (Nop) Close() error { return nil }

type amqpPublisher struct {
	conn     *amqp.Connection
	exchange string
	log      *slog.Logger
}

// New connects to the broker and declares the topic exchange. When cfg.URL is
// empty a Nop publisher is returned and the feature is disabled.
func New(cfg coreconfig.EventsConfig) (Publisher, error) {
	if cfg.URL == "" {
		return Nop{}, nil
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("events: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: declare exchange: %w", err)
	}

	logger.EVT.Info("event publisher ready",
		slog.String("event", "events.init"),
		slog.String("exchange", cfg.Exchange),
	)
	return &amqpPublisher{conn: conn, exchange: cfg.Exchange, log: logger.EVT}, nil
}

// PublishUploadCompleted sends one persistent JSON message per upload.
func (p *amqpPublisher) PublishUploadCompleted(ctx context.Context, ev UploadCompleted) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("events: open channel: %w", err)
	}
	defer ch.Close()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.UploadedAt.IsZero() {
		ev.UploadedAt = time.Now().UTC()
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal event: %w", err)
	}

	err = ch.PublishWithContext(
		ctx, p.exchange, routingKeyUploadCompleted, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	if p.log != nil {
		p.log.Info("published",
			slog.String("event", "events.published"),
			slog.String("key", routingKeyUploadCompleted),
			slog.String("exchange", p.exchange),
			slog.String("file_id", ev.DriveFileID),
		)
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	return p.conn.Close()
}
