package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

const (
	TopicOrderCreated       = "order-created"
	TopicOrderStatusUpdated = "order-status-updated"
	TopicOTPIssued          = "otp-issued"
)

type Topics struct {
	OrderCreated       string
	OrderStatusUpdated string
	OTPIssued          string
}

func DefaultTopics() Topics {
	return Topics{
		OrderCreated:       TopicOrderCreated,
		OrderStatusUpdated: TopicOrderStatusUpdated,
		OTPIssued:          TopicOTPIssued,
	}
}

func (t Topics) All() []string {
	return []string{t.OrderCreated, t.OrderStatusUpdated, t.OTPIssued}
}

// messageWriter is the subset of *kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as JSON for the mailer service to
// pick up. Order messages are keyed by order number and OTP messages by
// email so that each recipient's messages stay ordered within a partition.
type KafkaNotifier struct {
	orderCreated  messageWriter
	statusUpdated messageWriter
	otpIssued     messageWriter
	logger        *zap.Logger
	now           func() time.Time
}

func NewKafkaNotifier(brokers []string, topics Topics, logger *zap.Logger) *KafkaNotifier {
	return newKafkaNotifier(
		NewKafkaWriter(brokers, topics.OrderCreated),
		NewKafkaWriter(brokers, topics.OrderStatusUpdated),
		NewKafkaWriter(brokers, topics.OTPIssued),
		logger,
	)
}

func newKafkaNotifier(orderCreated, statusUpdated, otpIssued messageWriter, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		orderCreated:  orderCreated,
		statusUpdated: statusUpdated,
		otpIssued:     otpIssued,
		logger:        logger,
		now:           time.Now,
	}
}

var _ port.Notifier = (*KafkaNotifier)(nil)

// NewKafkaWriter creates a writer that waits for the partition leader only.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: 5 * time.Second,
	}
}

func (k *KafkaNotifier) NotifyOrder(ctx context.Context, event domain.OrderEvent) error {
	writer := k.orderCreated
	if event.Type == domain.OrderEventStatusChanged {
		writer = k.statusUpdated
	}
	return k.write(ctx, writer, event.OrderNumber, event)
}

func (k *KafkaNotifier) SendOTP(ctx context.Context, msg domain.OTPMessage) error {
	return k.write(ctx, k.otpIssued, msg.Email, msg)
}

func (k *KafkaNotifier) write(ctx context.Context, w messageWriter, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	err = w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  k.now(),
	})
	if err != nil {
		k.logger.Warn("failed to write message to kafka", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("write kafka message: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return errors.Join(
		k.orderCreated.Close(),
		k.statusUpdated.Close(),
		k.otpIssued.Close(),
	)
}

// CreateTopics creates the given topics through the cluster controller.
// Topics that already exist are left alone.
func CreateTopics(brokerAddr string, topics []string, partitions int) error {
	conn, err := kafka.Dial("tcp", brokerAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}

	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     partitions,
			ReplicationFactor: 1,
		})
	}
	return controllerConn.CreateTopics(configs...)
}
