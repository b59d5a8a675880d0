// Package library hands a chosen search record to the downstream library
// service over Kafka. The search engine does not depend on it.
package library

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-search-service/internal/domain"
	"github.com/helixir/paper-search-service/internal/observability"
)

// DefaultTopic receives paper import requests.
const DefaultTopic = "library.paper-import"

// correlationHeader carries the request correlation id on published messages.
const correlationHeader = "correlation_id"

// ImportRequest is the message published for one paper.
type ImportRequest struct {
	Paper       *domain.Paper `json:"paper"`
	Tags        string        `json:"tags"`
	RequestedAt time.Time     `json:"requested_at"`
}

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Recorder receives publish outcomes. *observability.Metrics satisfies it.
type Recorder interface {
	RecordLibraryImport(outcome string)
}

// Config holds publisher settings.
type Config struct {
	// Brokers is the list of Kafka broker addresses. Empty disables publishing.
	Brokers []string
	// Topic defaults to DefaultTopic.
	Topic string
	// BatchTimeout is the maximum time to wait for a batch to fill.
	BatchTimeout time.Duration
	// WriteTimeout bounds one publish.
	WriteTimeout time.Duration
}

// Publisher publishes import requests. A Publisher without a writer reports
// every publish as domain.ErrServiceUnavailable.
type Publisher struct {
	writer   MessageWriter
	recorder Recorder
	now      func() time.Time
	logger   zerolog.Logger
}

// NewPublisher creates a Kafka-backed publisher. With no brokers configured
// the publisher is disabled.
func NewPublisher(cfg Config, recorder Recorder, logger zerolog.Logger) *Publisher {
	if len(cfg.Brokers) == 0 {
		return NewPublisherWithWriter(nil, recorder, logger)
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		AllowAutoTopicCreation: false,
	}
	return NewPublisherWithWriter(writer, recorder, logger)
}

// NewPublisherWithWriter creates a publisher on top of an existing writer.
// writer may be nil.
func NewPublisherWithWriter(writer MessageWriter, recorder Recorder, logger zerolog.Logger) *Publisher {
	return &Publisher{
		writer:   writer,
		recorder: recorder,
		now:      time.Now,
		logger:   logger.With().Str("component", "library-publisher").Logger(),
	}
}

// Enabled reports whether a broker is configured.
func (p *Publisher) Enabled() bool {
	return p.writer != nil
}

// Publish sends one import request and returns it as published.
func (p *Publisher) Publish(ctx context.Context, paper *domain.Paper, tags string) (*ImportRequest, error) {
	if p.writer == nil {
		p.record("disabled")
		return nil, fmt.Errorf("library hand-off is not configured: %w", domain.ErrServiceUnavailable)
	}
	if err := ValidatePaper(paper); err != nil {
		p.record("invalid")
		return nil, err
	}

	req := &ImportRequest{
		Paper:       paper,
		Tags:        strings.TrimSpace(tags),
		RequestedAt: p.now().UTC(),
	}
	value, err := json.Marshal(req)
	if err != nil {
		p.record("error")
		return nil, fmt.Errorf("failed to encode import request: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(MessageKey(paper)),
		Value: value,
	}
	if id := observability.CorrelationIDFromContext(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: correlationHeader, Value: []byte(id)})
	}

	logger := observability.WithPaperContext(observability.FromContext(ctx, p.logger), string(paper.Source), paper.ExternalID)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.record("error")
		logger.Error().Err(err).Msg("failed to publish import request")
		return nil, fmt.Errorf("failed to publish import request: %w: %w", domain.ErrServiceUnavailable, err)
	}

	p.record("published")
	logger.Info().Str("tags", req.Tags).Msg("import request published")
	return req, nil
}

// Close flushes pending messages and closes the writer.
func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *Publisher) record(outcome string) {
	if p.recorder != nil {
		p.recorder.RecordLibraryImport(outcome)
	}
}

// ValidatePaper checks the fields the library layer relies on.
func ValidatePaper(paper *domain.Paper) error {
	if paper == nil {
		return domain.NewValidationError("paper", "is required")
	}
	if strings.TrimSpace(paper.Title) == "" {
		return domain.NewValidationError("paper.title", "is required")
	}
	if !domain.IsValidSourceType(paper.Source) {
		return domain.NewValidationError("paper.source", fmt.Sprintf("unknown source %q", paper.Source))
	}
	return nil
}

// MessageKey partitions messages so repeated imports of one paper stay ordered.
// DOIs are preferred, then the source-scoped external id, then the title.
func MessageKey(paper *domain.Paper) string {
	if doi := paper.DOIKey(); doi != "" {
		return doi
	}
	if paper.ExternalID != "" {
		return string(paper.Source) + ":" + paper.ExternalID
	}
	return string(paper.Source) + ":" + strings.ToLower(domain.CollapseWhitespace(paper.Title))
}
