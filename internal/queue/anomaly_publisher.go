// Package queue publishes flagged anomalies to Kafka for downstream
// consumers such as notification services.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"climacaribe/internal/models"
)

// AnomalyEvent is the wire form of one flagged reading.
type AnomalyEvent struct {
	CycleID   string    `json:"cycle_id"`
	Timestamp time.Time `json:"ts"`
	StationID string    `json:"station_id"`
	City      string    `json:"city"`
	Region    string    `json:"region"`
	Value     float64   `json:"value"`
	ZScore    float64   `json:"z_score"`
}

// AnomalyPublisher writes one event per flagged reading when a cycle
// publishes. Messages are keyed by city so a city's anomalies stay ordered
// within a partition.
type AnomalyPublisher struct {
	writer *kafka.Writer
}

// NewAnomalyPublisher creates a Kafka publisher for anomaly events.
func NewAnomalyPublisher(brokers []string, topic string) *AnomalyPublisher {
	return &AnomalyPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Name identifies the sink in logs and metrics.
func (p *AnomalyPublisher) Name() string {
	return "kafka"
}

// PublishSnapshot emits the cycle's flagged anomalies. Cycles with none
// publish nothing.
func (p *AnomalyPublisher) PublishSnapshot(ctx context.Context, snap *models.Snapshot) error {
	var messages []kafka.Message

	for i := range snap.Anomalies {
		a := &snap.Anomalies[i]
		if !a.IsAnomaly {
			continue
		}

		event := AnomalyEvent{
			CycleID:   snap.CycleID,
			Timestamp: a.Reading.Timestamp,
			StationID: a.Reading.StationID,
			City:      a.Reading.City,
			Region:    a.Reading.Region,
			Value:     a.Value,
			ZScore:    a.ZScore,
		}

		value, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal anomaly event: %w", err)
		}

		messages = append(messages, kafka.Message{
			Key:   []byte(a.Reading.City),
			Value: value,
		})
	}

	if len(messages) == 0 {
		return nil
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("failed to write anomaly events: %w", err)
	}

	return nil
}

// Close closes the underlying writer.
func (p *AnomalyPublisher) Close() error {
	return p.writer.Close()
}
