package publish

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/raster-intake/internal/stac"
)

// HeaderLogicalTS carries the publish time in unix nanoseconds.
const HeaderLogicalTS = "logical-ts"

// NewProducerConfig returns a synchronous producer config that waits for every
// in-sync replica and de-duplicates broker-side retries.
func NewProducerConfig(clientID string) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

type KafkaEmitter struct {
	producer sarama.SyncProducer
	topic    string
}

func NewKafkaEmitter(p sarama.SyncProducer, topic string) *KafkaEmitter {
	return &KafkaEmitter{producer: p, topic: topic}
}

func (k *KafkaEmitter) Emit(ctx context.Context, key string, payload []byte, logicalTS time.Time) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}
	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderLogicalTS), Value: []byte(strconv.FormatInt(logicalTS.UnixNano(), 10))},
			{Key: []byte("content-type"), Value: []byte(stac.MediaGeoJSON)},
		},
		Timestamp: logicalTS,
	}
	partition, offset, err := k.producer.SendMessage(msg)
	if err != nil {
		return Delivery{}, fmt.Errorf("send %s to %s: %w", key, k.topic, err)
	}
	return Delivery{Topic: k.topic, Partition: partition, Offset: offset}, nil
}

func (k *KafkaEmitter) Close() error { return k.producer.Close() }
