package writer

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/factory"
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/model"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	log "github.com/sirupsen/logrus"
)

func init() {
	factory.RegisterWriter("kafka", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		return NewKafkaWriter(def.Kafka, interval)
	})
}

// KafkaWriter publishes one JSON message per feature row. Messages are keyed by
// the Flow ID column when the profile has one.
type KafkaWriter struct {
	producer sarama.AsyncProducer
	topic    string
	interval time.Duration
	done     chan struct{}
}

// NewKafkaWriter starts an async producer against the configured brokers.
func NewKafkaWriter(cfg config.KafkaConfig, interval time.Duration) (*KafkaWriter, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka writer requires brokers and a topic")
	}
	producer, err := sarama.NewAsyncProducer(cfg.Brokers, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start kafka producer: %w", err)
	}
	w := &KafkaWriter{producer: producer, topic: cfg.Topic, interval: interval, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		for err := range producer.Errors() {
			log.Errorf("Failed to write message to kafka: %v", err)
		}
	}()
	return w, nil
}

// GetInterval returns the configured snapshot interval for this writer.
func (w *KafkaWriter) GetInterval() time.Duration {
	return w.interval
}

// Write queues every row of the batch on the producer.
func (w *KafkaWriter) Write(batch *model.FeatureBatch, timestamp string) error {
	keyCol := -1
	flowID := features.Get(features.FlowID).Key
	for i, k := range batch.Keys {
		if k == flowID {
			keyCol = i
			break
		}
	}

	for i, row := range batch.Rows {
		out, err := json.Marshal(RowObject(batch, i, row, timestamp))
		if err != nil {
			return fmt.Errorf("failed to marshal row: %w", err)
		}
		msg := &sarama.ProducerMessage{Topic: w.topic, Value: sarama.ByteEncoder(out)}
		if keyCol >= 0 {
			msg.Key = sarama.StringEncoder(row[keyCol])
		}
		w.producer.Input() <- msg
	}
	return nil
}

// RowObject maps a batch row to a JSON-friendly object keyed by column key.
func RowObject(batch *model.FeatureBatch, i int, row []string, timestamp string) map[string]interface{} {
	values := rowValues(batch, i, row)
	obj := make(map[string]interface{}, len(batch.Keys)+2)
	obj["snapshot"] = timestamp
	obj["profile"] = batch.Profile
	for j, k := range batch.Keys {
		if j < len(values) {
			obj[k] = values[j]
		}
	}
	return obj
}

// Close flushes pending messages and shuts the producer down.
func (w *KafkaWriter) Close() error {
	err := w.producer.Close()
	<-w.done
	return err
}
