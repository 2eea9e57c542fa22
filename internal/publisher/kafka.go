package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"sleigh-tracker/internal/playback"
)

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes frames to <prefix>.frames and arrivals to <prefix>.arrivals.
// Frames are fire-and-forget; arrivals wait for the broker.
type KafkaPublisher struct {
	frames   kafkaMessageWriter
	arrivals kafkaMessageWriter
	timeout  time.Duration
	metrics  Metrics
	log      *slog.Logger
}

func NewKafkaPublisher(brokers []string, prefix string, m Metrics, log *slog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if log == nil {
		log = slog.Default()
	}
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "sleigh"
	}
	frames := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  prefix + ".frames",
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireNone,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           50 * time.Millisecond,
		Completion: func(_ []kafka.Message, err error) {
			if err != nil {
				log.Debug("kafka frame batch failed", "err", err)
				if m != nil {
					m.PublishErrInc("kafka")
				}
			}
		},
	}
	arrivals := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  prefix + ".arrivals",
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	if m != nil {
		m.SetSinkConnected(true)
	}
	log.Info("kafka publisher ready", "brokers", strings.Join(brokers, ","), "prefix", prefix)
	return newKafkaPublisher(frames, arrivals, m, log), nil
}

func newKafkaPublisher(frames, arrivals kafkaMessageWriter, m Metrics, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		frames:   frames,
		arrivals: arrivals,
		timeout:  5 * time.Second,
		metrics:  m,
		log:      log,
	}
}

func (p *KafkaPublisher) PublishFrame(f playback.Frame) error {
	return p.write(p.frames, []byte("sleigh"), f)
}

func (p *KafkaPublisher) PublishArrival(a playback.Arrival) error {
	return p.write(p.arrivals, []byte(a.City), a)
}

func (p *KafkaPublisher) write(w kafkaMessageWriter, key []byte, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	err = w.WriteMessages(ctx, kafka.Message{Key: key, Value: b, Time: start})
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.PublishErrInc("kafka")
		} else {
			p.metrics.PublishedInc("kafka")
		}
	}
	if err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	for _, w := range []kafkaMessageWriter{p.frames, p.arrivals} {
		if err := w.Close(); err != nil {
			p.log.Warn("kafka writer close failed", "err", err)
		}
	}
	if p.metrics != nil {
		p.metrics.SetSinkConnected(false)
	}
}
