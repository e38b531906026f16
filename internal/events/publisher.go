package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Publisher delivers domain events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// TransactionCompleted is emitted after a withdrawal or transfer commits.
type TransactionCompleted struct {
	Type        string          `json:"type"`
	FromUserID  string          `json:"from_user_id"`
	ToUserID    string          `json:"to_user_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
