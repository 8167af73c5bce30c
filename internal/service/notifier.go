// Package service holds collaborators the scheduler calls out to.
// The notifier publishes reservation events to RabbitMQ; it is
// strictly best-effort and never lets a broker failure affect the
// scheduling operation that triggered it.
package service

import (
    "context"
    "encoding/json"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/facility-reservation/internal/model"
    "github.com/iliyamo/facility-reservation/internal/queue"
)

const eventsQueueName = "reservation.events"

// AMQPNotifier implements schedule.Notifier by publishing persistent
// JSON messages to the reservation.events queue.  Each publish dials
// its own short-lived connection; errors are logged and returned so
// the caller can choose to ignore them.
type AMQPNotifier struct {
    url string
}

// NewAMQPNotifier builds a notifier for the broker at url (resolved by
// queue.BrokerURL when empty).
func NewAMQPNotifier(url string) *AMQPNotifier {
    if url == "" {
        url = queue.BrokerURL()
    }
    return &AMQPNotifier{url: url}
}

// Notify publishes the event for a reservation.  The function never
// panics; any error is logged and surfaced for the caller to drop.
func (n *AMQPNotifier) Notify(ctx context.Context, kind string, res *model.Reservation) error {
    conn, err := amqp.Dial(n.url)
    if err != nil {
        log.Printf("rabbitmq: dial failed: %v", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Printf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    // Idempotent declare; durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(eventsQueueName, true, false, false, false, nil); err != nil {
        log.Printf("rabbitmq: queue declare failed: %v", err)
        return err
    }

    ev := queue.ReservationEvent{
        Kind:          kind,
        ReservationID: res.ID,
        RoomID:        res.RoomID,
        UserID:        res.UserID,
        Date:          res.DateKey(),
        StartTime:     res.StartTime,
        EndTime:       res.EndTime,
        Status:        res.Status,
        Purpose:       res.Purpose,
        OccurredAt:    time.Now().UTC().Format(time.RFC3339),
    }
    if res.SeriesID != nil {
        ev.SeriesID = *res.SeriesID
    }
    body, err := json.Marshal(ev)
    if err != nil {
        log.Printf("rabbitmq: marshal event failed: %v", err)
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", eventsQueueName, false, false, pub); err != nil {
        log.Printf("rabbitmq: publish failed: %v", err)
        return err
    }
    return nil
}
