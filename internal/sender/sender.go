// Package sender defines the message transport contract consumed by the
// execution engine, plus the error taxonomy that decides whether a
// failure kills the campaign or only the current message.
package sender

import (
	"context"
	"errors"
	"fmt"
)

// Category classifies a send failure.
type Category string

const (
	CategoryConnection       Category = "connection"
	CategoryRateLimited      Category = "rate_limited"
	CategoryRecipientInvalid Category = "recipient_invalid"
	CategoryRecipientBanned  Category = "recipient_banned"
	CategorySessionBanned    Category = "session_banned"
	CategoryUnknown          Category = "unknown"
)

// Severity is the campaign-level consequence of a failure.
type Severity int

const (
	// SeverityRecipient marks the item failed and the loop continues.
	SeverityRecipient Severity = iota
	// SeveritySession stops the whole campaign with remaining items pending.
	SeveritySession
)

// Sender attempts to deliver one message.
type Sender interface {
	Send(ctx context.Context, recipientRef, payload string) error
}

// SendError carries the transport's failure category.
type SendError struct {
	Category Category
	Detail   string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed (%s): %s", e.Category, e.Detail)
}

func NewSendError(category Category, detail string) error {
	return &SendError{Category: category, Detail: detail}
}

// Classify maps a send error to its severity. Anything we cannot
// categorize is treated as session-level: failing toward a stop beats
// silently looping on a broken transport.
func Classify(err error) Severity {
	var se *SendError
	if !errors.As(err, &se) {
		return SeveritySession
	}
	switch se.Category {
	case CategoryRecipientInvalid, CategoryRecipientBanned:
		return SeverityRecipient
	case CategoryConnection, CategoryRateLimited, CategorySessionBanned:
		return SeveritySession
	default:
		return SeveritySession
	}
}

// CategoryOf extracts the category, defaulting to unknown.
func CategoryOf(err error) Category {
	var se *SendError
	if errors.As(err, &se) {
		return se.Category
	}
	return CategoryUnknown
}
