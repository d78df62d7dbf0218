// Package events publishes domain events to an SQS queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/agrichain/marketplace/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/shopspring/decimal"
)

// TypeOrderPlaced tags the event emitted after a committed checkout
const TypeOrderPlaced = "order.placed"

// OrderPlaced is the message body published for a committed checkout
type OrderPlaced struct {
	Type       string          `json:"type"`
	OrderID    string          `json:"orderId"`
	CustomerID string          `json:"customer"`
	Farmers    []string        `json:"farmers"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
	Items      int             `json:"items"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// NewOrderPlaced summarises an order. Farmers are de-duplicated and sorted.
func NewOrderPlaced(o *models.Order) OrderPlaced {
	seen := make(map[string]bool)
	farmers := []string{}
	items := 0
	for _, l := range o.Lines {
		items += l.Quantity
		if l.FarmerID != "" && !seen[l.FarmerID] {
			seen[l.FarmerID] = true
			farmers = append(farmers, l.FarmerID)
		}
	}
	sort.Strings(farmers)
	return OrderPlaced{
		Type:       TypeOrderPlaced,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Farmers:    farmers,
		TotalPrice: o.TotalPrice,
		Items:      items,
		OccurredAt: o.CreatedAt,
	}
}

// Publisher emits order events
type Publisher interface {
	PublishOrderPlaced(ctx context.Context, o *models.Order) error
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends events as SQS messages
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSPublisher loads the default AWS credential chain for region
func NewSQSPublisher(ctx context.Context, region, queueURL string) (*SQSPublisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Printf("[EVENTS] Publishing order events to %s", queueURL)
	return &SQSPublisher{client: sqs.NewFromConfig(cfg), queueURL: queueURL}, nil
}

// PublishOrderPlaced sends an order.placed message
func (p *SQSPublisher) PublishOrderPlaced(ctx context.Context, o *models.Order) error {
	body, err := json.Marshal(NewOrderPlaced(o))
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"type": {DataType: aws.String("String"), StringValue: aws.String(TypeOrderPlaced)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s for order %s: %w", TypeOrderPlaced, o.ID, err)
	}
	return nil
}

// Nop drops events; used when no queue is configured
type Nop struct{}

func (Nop) PublishOrderPlaced(context.Context, *models.Order) error { return nil }
