// Package notify publishes submission-received events to the notification
// topic. A separate consumer turns them into the actual email delivery, so a
// broker outage never fails a submission.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"intakeservice/pkg/utils"
)

type SubmissionEvent struct {
	DocumentID      string    `json:"document_id"`
	ParticipantName string    `json:"participant_name"`
	FileCount       int       `json:"file_count"`
	ReceivedAt      time.Time `json:"received_at"`
}

type EventSender struct {
	writer  *kafka.Writer
	breaker *utils.CircuitBreaker
}

func NewEventSender(brokers []string, topic string) *EventSender {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &EventSender{
		writer:  writer,
		breaker: utils.NewCircuitBreaker(5, 30*time.Second),
	}
}

func (s *EventSender) Close() error {
	return s.writer.Close()
}

// SubmissionReceived sends one event, retrying transient broker errors.
func (s *EventSender) SubmissionReceived(ctx context.Context, event SubmissionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal submission event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.DocumentID),
		Value: data,
		Time:  time.Now(),
	}

	_, err = utils.RetryWithCircuitBreaker(ctx, s.breaker, 3, 200*time.Millisecond, func() (struct{}, error) {
		return struct{}{}, s.writer.WriteMessages(ctx, message)
	})
	if err != nil {
		return fmt.Errorf("failed to write submission event: %w", err)
	}
	return nil
}
