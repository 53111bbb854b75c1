package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"askthedocs/internal/model"
)

// HistoryPublisher hands completed exchanges to the broker for the persist
// worker to archive.
type HistoryPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewHistoryPublisher(conn *amqp.Connection, queueName string) *HistoryPublisher {
	return &HistoryPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *HistoryPublisher) Publish(ctx context.Context, rec model.HistoryRecord) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish history record failed: %w", err)
	}
	return nil
}
