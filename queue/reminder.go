package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/streadway/amqp"

	"github.com/habithive/habithive/notifications/email"
	"github.com/habithive/habithive/storage/cache"
)

// globalCount drives the round robin assignment of producers to reminder
// messages.
var globalCount int

// ReminderProducerFactory creates ReminderProducer instances.
type ReminderProducerFactory struct{}

// ReminderConsumerFactory creates ReminderConsumer instances. The cache is
// used to drop reminders that were already delivered.
type ReminderConsumerFactory struct {
	Cache cache.CacheInterface
}

// ReminderProducer publishes reminder messages to the broker queue.
type ReminderProducer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   *amqp.Queue
}

// ReminderConsumer drains reminder messages from the broker queue, dedups
// them against the cache and delivers them by email.
type ReminderConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   *amqp.Queue
	cache   cache.CacheInterface
}

// ReminderMessage is the wire content of one habit reminder. Id is unique per
// (habit, day) so a redelivered message is recognized as already handled.
type ReminderMessage struct {
	Id        string `json:"id"`
	To        string `json:"to"`
	HabitName string `json:"habit_name"`
	At        string `json:"at"` // the habit's reminder time, HH:MM
}

func (f *ReminderProducerFactory) CreateProducer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Producer, error) {
	return &ReminderProducer{
		conn:    conn,
		channel: ch,
		queue:   queue,
	}, nil
}

func (f *ReminderConsumerFactory) CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error) {
	return &ReminderConsumer{
		conn:    conn,
		channel: ch,
		queue:   queue,
		cache:   f.Cache,
	}, nil
}

// Publish sends a message body to the reminder queue.
func (rp *ReminderProducer) Publish(body []byte) error {
	err := rp.channel.Publish(
		"",            // exchange
		rp.queue.Name, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// Consume sets up a consumer on the reminder queue and launches a worker that
// unmarshals each message, checks the cache for a prior delivery, and either
// sends the reminder email or acks the duplicate away. Transient failures
// nack with requeue.
func (rc *ReminderConsumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	msgs, err := rc.channel.Consume(
		rc.queue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case d, ok := <-msgs:
				if !ok {
					return
				}

				message := &ReminderMessage{}
				if err := json.Unmarshal(d.Body, message); err != nil {
					log.Printf("failed to unmarshal reminder message: %v", err)
					d.Nack(false, true)
					continue
				}

				var delivered bool
				err := rc.cache.Get(ctx, "reminder_"+message.Id, &delivered)
				if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
					log.Printf("error checking cache: %v", err)
					d.Nack(false, true)
					continue
				}
				if delivered {
					d.Ack(false)
					continue
				}

				if err := email.SendReminder(message.To, message.HabitName, message.At); err != nil {
					log.Printf("failed to send reminder: %v", err)
					d.Nack(false, true)
				} else {
					d.Ack(false)
					if err := rc.cache.Set(ctx, "reminder_"+message.Id, true); err != nil {
						log.Printf("failed to set key in cache: %v", err)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return msgs, nil
}

// BuildReminderQueue initializes a Queue for habit reminders with the given
// number of producers and consumers.
func BuildReminderQueue(rabbitMQURL string, numProducers, numConsumers int, reminderCache cache.CacheInterface) (*Queue, error) {
	prodFactories := make([]ProducerFactory, numProducers)
	for i := 0; i < numProducers; i++ {
		prodFactories[i] = &ReminderProducerFactory{}
	}

	consFactories := make([]ConsumerFactory, numConsumers)
	for i := 0; i < numConsumers; i++ {
		consFactories[i] = &ReminderConsumerFactory{Cache: reminderCache}
	}

	return InitQueue(rabbitMQURL, "reminderQueue", prodFactories, consFactories)
}

// ProcessReminder serializes a reminder message and publishes it onto the
// queue through one of the producers, picked round robin.
func ProcessReminder(msg *ReminderMessage, reminderQueue *Queue) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.New("failed to marshal reminder message: " + err.Error())
	}

	producerCount := len(reminderQueue.Producers)
	if producerCount == 0 {
		return errors.New("no producers available")
	}

	producer := reminderQueue.Producers[globalCount%producerCount]
	globalCount++

	if err := producer.Publish(body); err != nil {
		return errors.New("failed to publish reminder message: " + err.Error())
	}

	return nil
}
