package events

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName = "medflow.inventory"
	ExchangeType = "topic"
)

// Publisher emits inventory integration events to the clinic message bus.
// A nil Publisher is valid and drops everything, so the broker stays optional.
type Publisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		ExchangeName,
		ExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &Publisher{conn: conn, channel: ch}, nil
}

func (p *Publisher) publish(routingKey string, payload map[string]interface{}) error {
	if p == nil || p.channel == nil {
		return nil
	}
	body, err := json.Marshal(map[string]interface{}{
		"event_type": routingKey,
		"payload":    payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	err = p.channel.Publish(
		ExchangeName,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			AppId:        "inventory",
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *Publisher) ReservationCreated(clinicID, itemID, reservationID, orderRef string, qty int) error {
	return p.publish("inventory.reservation.created", map[string]interface{}{
		"clinic_id":      clinicID,
		"stock_item_id":  itemID,
		"reservation_id": reservationID,
		"order_ref":      orderRef,
		"quantity":       qty,
	})
}

func (p *Publisher) StockChanged(clinicID, itemID string, totalStock, reserved int) error {
	return p.publish("inventory.stock.changed", map[string]interface{}{
		"clinic_id":     clinicID,
		"stock_item_id": itemID,
		"total_stock":   totalStock,
		"reserved":      reserved,
	})
}

func (p *Publisher) ContainerQuarantined(clinicID, containerID, reason string) error {
	return p.publish("inventory.container.quarantined", map[string]interface{}{
		"clinic_id":    clinicID,
		"container_id": containerID,
		"reason":       reason,
	})
}

func (p *Publisher) DisposalRecommended(clinicID, containerID string, excursionMinutes, maxMinutes int) error {
	return p.publish("inventory.container.disposal_recommended", map[string]interface{}{
		"clinic_id":         clinicID,
		"container_id":      containerID,
		"excursion_minutes": excursionMinutes,
		"max_minutes":       maxMinutes,
	})
}

func (p *Publisher) Close() {
	if p == nil {
		return
	}
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
