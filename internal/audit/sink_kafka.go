package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaSink publishes audit events to a Kafka topic, keyed by endpoint so an
// endpoint's events stay ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka audit client: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

type kafkaEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	EndpointID  string    `json:"endpoint_id"`
	Domain      string    `json:"domain"`
	Action      string    `json:"action"`
	PatientUUID string    `json:"patient_uuid,omitempty"`
	CaseID      string    `json:"case_id,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Detail      string    `json:"detail,omitempty"`
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(kafkaEvent{
		Timestamp:   event.Timestamp,
		EndpointID:  event.EndpointID,
		Domain:      event.Domain,
		Action:      string(event.Action),
		PatientUUID: event.PatientUUID,
		CaseID:      event.CaseID,
		Reason:      event.Reason,
		Detail:      event.Detail,
	})
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.EndpointID),
		Value: value,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
