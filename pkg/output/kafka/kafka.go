package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ericogr/htu21d-logger/pkg/config"
	"github.com/ericogr/htu21d-logger/pkg/output"
	"github.com/ericogr/htu21d-logger/pkg/sensor"
)

const (
	DefaultTopic = "htu21d.readings"
	writeTimeout = 2 * time.Second
)

// messageWriter is the subset of *kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaOutput struct {
	w messageWriter
}

// NewKafka publishes readings to cfg.Topic keyed by channel name, so each
// channel keeps its order within a partition.
func NewKafka(cfg config.KafkaConfig) (output.Output, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers provided")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaOutput{w: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}}, nil
}

type message struct {
	Channel   sensor.Channel `json:"channel"`
	Raw       string         `json:"raw"`
	Value     float64        `json:"value"`
	Unit      string         `json:"unit"`
	Elapsed   int            `json:"elapsed"`
	Timestamp time.Time      `json:"timestamp"`
}

func encode(r sensor.Reading) (kafka.Message, error) {
	b, err := json.Marshal(message{
		Channel:   r.Channel,
		Raw:       r.Raw,
		Value:     r.Value,
		Unit:      r.Channel.Unit(),
		Elapsed:   r.Elapsed,
		Timestamp: r.Timestamp,
	})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{Key: []byte(r.Channel.String()), Value: b, Time: r.Timestamp}, nil
}

func (k *KafkaOutput) Publish(readings []sensor.Reading) error {
	if len(readings) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(readings))
	for _, r := range readings {
		m, err := encode(r)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (k *KafkaOutput) Close() error { return k.w.Close() }
