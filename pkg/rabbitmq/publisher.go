package rabbitmq

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"consult-edge/dto"
)

const routingKeyConsultationCreated = "consultation.created"

// EventPublisher emits edge-agent events onto a durable exchange. It
// satisfies the upload agent's Notifier contract.
type EventPublisher struct {
	ch       *amqp.Channel
	exchange string
}

func (p *EventPublisher) ConsultationCreated(ctx context.Context, msg dto.ConsultationCreatedMessage) error {
	return p.publish(ctx, routingKeyConsultationCreated, msg)
}

func (p *EventPublisher) publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (p *EventPublisher) Close() error {
	return p.ch.Close()
}

func NewEventPublisher(conn *amqp.Connection, exchange, kind string) (*EventPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, kind, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, err
	}
	return &EventPublisher{
		ch:       ch,
		exchange: exchange,
	}, nil
}
