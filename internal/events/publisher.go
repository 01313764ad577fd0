// Package events publishes confirmed sales to Kafka for downstream
// consumers (reporting, stock reconciliation).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/tillwise/pos/internal/domain"
)

const Topic = "pos-sales"

// messageWriter is the slice of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// saleEventItem mirrors the receipt line shape consumers expect.
type saleEventItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type saleCompletedEvent struct {
	EventID        string          `json:"event_id"`
	SaleID         string          `json:"sale_id"`
	ShopID         string          `json:"shop_id"`
	TerminalID     string          `json:"terminal_id"`
	PaymentMethod  string          `json:"payment_method"`
	TotalAmount    string          `json:"total_amount"`
	DiscountAmount string          `json:"discount_amount"`
	Items          []saleEventItem `json:"items"`
	CompletedAt    time.Time       `json:"completed_at"`
}

type Publisher struct {
	writer messageWriter
}

func NewPublisher(brokers ...string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w}
}

// SaleCompleted publishes one event per confirmed sale, keyed by sale
// id so replays for the same sale land in the same partition.
func (p *Publisher) SaleCompleted(ctx context.Context, sale domain.Sale, terminalID string) error {
	event := saleCompletedEvent{
		EventID:        uuid.New().String(),
		SaleID:         sale.ID,
		ShopID:         sale.ShopID,
		TerminalID:     terminalID,
		PaymentMethod:  sale.PaymentMethod,
		TotalAmount:    sale.TotalAmount.String(),
		DiscountAmount: sale.DiscountAmount.String(),
		CompletedAt:    sale.CreatedAt,
	}
	for _, item := range sale.Items {
		event.Items = append(event.Items, saleEventItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.String(),
		})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal sale event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(sale.ID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("write sale event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
