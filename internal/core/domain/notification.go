package domain

import "time"

type NotificationType string

const (
	NotificationTypeEmail NotificationType = "email"
	NotificationTypeSMS   NotificationType = "sms"
	NotificationTypePush  NotificationType = "push"
)

// NotificationStatus only moves pending -> sent or pending -> failed.
type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s NotificationStatus) Terminal() bool {
	return s == NotificationStatusSent || s == NotificationStatusFailed
}

type Notification struct {
	ID        string             `json:"id"`
	Type      NotificationType   `json:"type"`
	Recipient string             `json:"recipient"`
	Subject   string             `json:"subject,omitempty"`
	Message   string             `json:"message"`
	Data      map[string]any     `json:"data,omitempty"`
	Status    NotificationStatus `json:"status"`
	CreatedAt time.Time          `json:"createdAt"`
	SentAt    *time.Time         `json:"sentAt,omitempty"`
	Error     string             `json:"error,omitempty"`
}

type NotificationRequest struct {
	Type      NotificationType `json:"type" validate:"required,oneof=email sms push"`
	Recipient string           `json:"recipient" validate:"required"`
	Subject   string           `json:"subject,omitempty"`
	Message   string           `json:"message" validate:"required"`
	Data      map[string]any   `json:"data,omitempty"`
}
