package queue

import (
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue verteilt Jobs über ein Kafka-Topic an eine Consumer-Group.
type KafkaQueue struct {
	writer messageWriter
	reader messageReader
	logger *zap.Logger
}

// NewKafkaQueue erstellt Writer und Reader für topic.
func NewKafkaQueue(brokers []string, topic, groupID string, logger *zap.Logger) *KafkaQueue {
	return &KafkaQueue{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1,
			MaxBytes: 1 << 20,
			MaxWait:  time.Second,
		}),
		logger: logger.With(zap.String("topic", topic)),
	}
}

// Enqueue schreibt den Job mit der Analyse-ID als Schlüssel.
func (q *KafkaQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := encodeJob(job)
	if err != nil {
		return err
	}
	return q.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(job.AnalysisID), 10)),
		Value: payload,
	})
}

// Start liest Nachrichten und committet sie nach der Verarbeitung.
func (q *KafkaQueue) Start(ctx context.Context, h Handler) error {
	for {
		msg, err := q.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return nil
			}
			q.logger.Warn("Lesen aus Kafka fehlgeschlagen", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		job, err := decodeJob(msg.Value)
		if err != nil {
			q.logger.Error("Ungültige Job-Nachricht verworfen", zap.Int64("offset", msg.Offset), zap.Error(err))
		} else if err := h(ctx, job); err != nil {
			q.logger.Warn("Job fehlgeschlagen", zap.Uint("analysis_id", job.AnalysisID), zap.Error(err))
		}

		if err := q.reader.CommitMessages(ctx, msg); err != nil {
			q.logger.Warn("Commit fehlgeschlagen", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

func (q *KafkaQueue) Close() error {
	return errors.Join(q.writer.Close(), q.reader.Close())
}
