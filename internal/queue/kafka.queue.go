package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"imagevariants/config"
	"imagevariants/internal/types"
	"imagevariants/pkg/logger"

	"github.com/segmentio/kafka-go"
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

// Brokers splits the comma separated KAFKA_BROKERS value.
func Brokers(cfg config.Config) []string {
	var brokers []string
	for _, broker := range strings.Split(cfg.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func Enabled(cfg config.Config) bool {
	return len(Brokers(cfg)) > 0
}

// Producer publishes derivation requests keyed by image id, so requests for
// one image land on one partition in order.
type Producer struct {
	writer messageWriter
	log    logger.Logger
}

func NewProducer(cfg config.Config) *Producer {
	return newProducer(&kafka.Writer{
		Addr:                   kafka.TCP(Brokers(cfg)...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	})
}

func newProducer(writer messageWriter) *Producer {
	return &Producer{writer: writer, log: logger.New("queueProducer")}
}

func (p *Producer) Enqueue(ctx context.Context, request types.DerivationRequest) error {
	log := p.log.Function("Enqueue").TraceFromContext(ctx)

	payload, err := json.Marshal(request)
	if err != nil {
		return log.Err("failed to marshal derivation request", err, "imageID", request.ImageID)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.Itoa(request.ImageID)),
		Value: payload,
		Time:  time.Now(),
	}
	if traceID := logger.TraceIDFromContext(ctx); traceID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "X-Trace-ID", Value: []byte(traceID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return log.Err("failed to enqueue derivation request", err, "imageID", request.ImageID)
	}

	log.Debug("derivation request enqueued", "imageID", request.ImageID, "types", request.Types)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

// Handler processes one derivation request.
type Handler func(ctx context.Context, request types.DerivationRequest) error

// Consumer reads derivation requests in a consumer group. Every message is
// committed once handled, whether or not handling succeeded: failures are
// reported by the handler, never retried here.
type Consumer struct {
	reader  messageReader
	handler Handler
	log     logger.Logger
}

func NewConsumer(cfg config.Config, handler Handler) *Consumer {
	return newConsumer(kafka.NewReader(kafka.ReaderConfig{
		Brokers:  Brokers(cfg),
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	}), handler)
}

func newConsumer(reader messageReader, handler Handler) *Consumer {
	return &Consumer{reader: reader, handler: handler, log: logger.New("queueConsumer")}
}

// Run blocks until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	log := c.log.Function("Run")
	log.Info("Starting derivation consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Info("Derivation consumer stopped")
				return nil
			}
			log.Er("failed to fetch message", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Er("failed to commit message", err, "offset", msg.Offset, "partition", msg.Partition)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	for _, header := range msg.Headers {
		if header.Key == "X-Trace-ID" {
			ctx = logger.ContextWithTraceID(ctx, string(header.Value))
		}
	}
	log := c.log.Function("handle").TraceFromContext(ctx)

	var request types.DerivationRequest
	if err := json.Unmarshal(msg.Value, &request); err != nil {
		log.Er("dropping malformed derivation request", err, "offset", msg.Offset)
		return
	}
	if request.ImageID <= 0 {
		log.Warn("dropping derivation request without image id", "offset", msg.Offset)
		return
	}

	if err := c.handler(ctx, request); err != nil {
		log.Er("derivation request failed", err, "imageID", request.ImageID, "types", request.Types)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
