package entities

import "time"

// NotificationType names what triggered a notification.
type NotificationType string

const (
	NotificationMention       NotificationType = "mention"
	NotificationReblog        NotificationType = "reblog"
	NotificationFavourite     NotificationType = "favourite"
	NotificationFollow        NotificationType = "follow"
	NotificationFollowRequest NotificationType = "follow_request"
	NotificationPoll          NotificationType = "poll"
	NotificationStatus        NotificationType = "status"
	NotificationUpdate        NotificationType = "update"
)

// Notification received by the authenticated account.
type Notification struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	CreatedAt time.Time        `json:"created_at"`
	Account   Account          `json:"account"`

	// Status is absent for follow and follow_request notifications.
	Status *Status `json:"status,omitempty"`
}
