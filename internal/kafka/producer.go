package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/refset/account-health/internal/scoring"
	"github.com/refset/account-health/internal/snapshot"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ResultMessage is the value published per scored account.
type ResultMessage struct {
	RunID string `json:"run_id"`
	scoring.Result
}

// Producer publishes scoring results and portfolio reports to Kafka
type Producer struct {
	resultsWriter messageWriter
	reportsWriter messageWriter
	logger        *zap.Logger
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, resultsTopic, reportsTopic string, logger *zap.Logger) *Producer {
	return &Producer{
		resultsWriter: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    resultsTopic,
			Balancer: &kafka.Hash{},
		},
		reportsWriter: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    reportsTopic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

// PublishResults sends one message per account, keyed by account ID so a
// given account always lands on the same partition.
func (p *Producer) PublishResults(ctx context.Context, runID string, results []scoring.Result) error {
	if len(results) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(results))
	for _, r := range results {
		data, err := json.Marshal(ResultMessage{RunID: runID, Result: r})
		if err != nil {
			return fmt.Errorf("encode result %s: %w", r.AccountID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(r.AccountID),
			Value: data,
		})
	}

	if err := p.resultsWriter.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish results: %w", err)
	}

	p.logger.Info("published results", zap.String("run_id", runID), zap.Int("count", len(msgs)))
	return nil
}

// PublishReport sends the full snapshot to the reports topic
func (p *Producer) PublishReport(ctx context.Context, snap snapshot.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(snap.RunID),
		Value: data,
	}

	if err := p.reportsWriter.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}

	p.logger.Info("published report", zap.String("run_id", snap.RunID))
	return nil
}

// Close closes the Kafka writers
func (p *Producer) Close() error {
	if err := p.resultsWriter.Close(); err != nil {
		return err
	}
	return p.reportsWriter.Close()
}
