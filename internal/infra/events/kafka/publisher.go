package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/bryanwahyu/geoanalysis/internal/domain/analyses"
)

const DefaultTopic = "geoanalysis.analysis.status"

// Writer is the part of kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends analysis status events keyed by analysis id, so every
// event of one analysis lands on the same partition in order.
type Publisher struct {
	writer Writer
	topic  string
	log    *zap.Logger
}

// New bikin publisher; tanpa broker hasilnya Noop
func New(brokers []string, topic string, log *zap.Logger) analyses.EventPublisher {
	if len(brokers) == 0 {
		return Noop{}
	}
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		Async:        false,
	}
	return NewWithWriter(w, topic, log)
}

func NewWithWriter(w Writer, topic string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{writer: w, topic: topic, log: log}
}

func (p *Publisher) Publish(ctx context.Context, e analyses.StatusEvent) error {
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(e.AnalysisID),
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(e.Status)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", p.topic, err)
	}
	p.log.Debug("status event published",
		zap.String("analysis_id", string(e.AnalysisID)),
		zap.String("status", string(e.Status)))
	return nil
}

func (p *Publisher) Close() error { return p.writer.Close() }

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, analyses.StatusEvent) error { return nil }
