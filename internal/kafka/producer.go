package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"userpay-client/internal/transfer"
)

// TransferConfirmedMessage сообщение о подтвержденном переводе
type TransferConfirmedMessage struct {
	TransactionID string          `json:"transaction_id"`
	Type          string          `json:"type"`
	Currency      string          `json:"currency"`
	Recipient     string          `json:"recipient"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
}

// messageWriter часть kafka.Writer, нужная продюсеру
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer публикует подтвержденные переводы не ниже порога
type Producer struct {
	writer    messageWriter
	threshold decimal.Decimal
	logger    *logrus.Logger
}

// NewProducer создает Kafka producer. Без брокеров продюсер ничего не отправляет.
func NewProducer(brokers []string, topic string, threshold decimal.Decimal, logger *logrus.Logger) *Producer {
	p := &Producer{
		threshold: threshold,
		logger:    logger,
	}
	if len(brokers) == 0 {
		logger.Debug("Kafka brokers not configured, transfer notifications disabled")
		return p
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Compression:  kafka.Snappy,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}

	logger.Infof("Kafka producer initialized for topic: %s", topic)
	return p
}

// Enabled сообщает, настроена ли отправка
func (p *Producer) Enabled() bool {
	return p != nil && p.writer != nil
}

// TransferConfirmed реализует transfer.Notifier
func (p *Producer) TransferConfirmed(ctx context.Context, event transfer.Confirmed) error {
	if !p.Enabled() {
		return nil
	}
	if event.Amount.LessThan(p.threshold) {
		p.logger.Debugf("Transfer amount %s is below threshold %s, skipping Kafka notification", event.Amount, p.threshold)
		return nil
	}

	message := TransferConfirmedMessage{
		TransactionID: event.TransactionID,
		Type:          "transfer_confirmed",
		Currency:      event.Currency,
		Recipient:     event.Recipient,
		Amount:        event.Amount,
		Timestamp:     event.ConfirmedAt,
	}

	messageBytes, err := json.Marshal(message)
	if err != nil {
		p.logger.Errorf("Failed to marshal Kafka message: %v", err)
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	kafkaMessage := kafka.Message{
		Key:   []byte("tx_" + event.TransactionID),
		Value: messageBytes,
		Time:  event.ConfirmedAt,
	}

	if err := p.writer.WriteMessages(ctx, kafkaMessage); err != nil {
		p.logger.Errorf("Failed to send message to Kafka: %v", err)
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.logger.Infof("Sent transfer notification to Kafka: tx=%s, Amount=%s %s",
		event.TransactionID, event.Amount, event.Currency)

	return nil
}

// Close закрывает Kafka producer
func (p *Producer) Close() error {
	if p.Enabled() {
		p.logger.Info("Closing Kafka producer")
		return p.writer.Close()
	}
	return nil
}
