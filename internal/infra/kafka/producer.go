package kafka

import (
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/verisafe/account-integrity/internal/infra/config"
)

const errBufferSize = 256

// Producer wraps a Sarama async producer with error draining and lifecycle
// management. Delivery failures surface on Errors and in the log rather than
// blocking publishers.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
	errs     chan error
	quit     chan struct{}
}

// NewProducer connects to the configured brokers and starts the error drain.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, producerConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := &Producer{
		producer: producer,
		logger:   logger,
		cfg:      cfg,
		errs:     make(chan error, errBufferSize),
		quit:     make(chan struct{}),
	}
	go p.drainErrors()

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
		zap.Bool("async", cfg.Async),
	)

	return p, nil
}

func producerConfig() *sarama.Config {
	c := sarama.NewConfig()
	c.Version = sarama.V3_5_0_0

	c.Producer.RequiredAcks = sarama.WaitForLocal
	c.Producer.Compression = sarama.CompressionSnappy
	c.Producer.Flush.Frequency = 100 * time.Millisecond
	c.Producer.Flush.Messages = 100
	c.Producer.Retry.Max = 3
	c.Producer.Return.Successes = false
	c.Producer.Return.Errors = true

	c.Metadata.Retry.Max = 3
	c.Metadata.Retry.Backoff = 250 * time.Millisecond

	return c
}

// drainErrors logs delivery failures and mirrors them onto the exported
// error channel without ever blocking on a slow consumer.
func (p *Producer) drainErrors() {
	for {
		select {
		case perr := <-p.producer.Errors():
			if perr == nil {
				continue
			}
			p.logger.Error("Kafka producer error",
				zap.Error(perr.Err),
				zap.String("topic", perr.Msg.Topic),
				zap.Int32("partition", perr.Msg.Partition),
				zap.Int64("offset", perr.Msg.Offset),
			)
			select {
			case p.errs <- perr.Err:
			default:
				p.logger.Warn("Error channel full, dropping error")
			}
		case <-p.quit:
			return
		}
	}
}

// Producer exposes the underlying Sarama producer for publishing.
func (p *Producer) Producer() sarama.AsyncProducer {
	return p.producer
}

// Errors returns delivery failures for external monitoring.
func (p *Producer) Errors() <-chan error {
	return p.errs
}

// Close stops the error drain and flushes pending messages.
func (p *Producer) Close() error {
	p.logger.Info("Closing Kafka producer")
	close(p.quit)

	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}

	close(p.errs)
	return nil
}

// TopicName prepends the configured topic prefix unless the event type
// already carries it.
func (p *Producer) TopicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}

	prefix := p.cfg.TopicPrefix + "."
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}

	return prefix + eventType
}
