package stream

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Sternrassler/fediverse-client/pkg/entities"
)

// Event names sent by the streaming API.
const (
	EventUpdate         = "update"
	EventNotification   = "notification"
	EventDelete         = "delete"
	EventFiltersChanged = "filters_changed"
)

// ErrMissingData matches every *MissingDataError.
var ErrMissingData = errors.New("stream: frame has no data")

// Event is one decoded streaming event. The concrete types are
// UpdateEvent, NotificationEvent, DeleteEvent and FiltersChangedEvent.
type Event interface {
	EventName() string
	isEvent()
}

// UpdateEvent carries a new status.
type UpdateEvent struct {
	Status entities.Status
}

// NotificationEvent carries a new notification.
type NotificationEvent struct {
	Notification entities.Notification
}

// DeleteEvent carries the id of a deleted status.
type DeleteEvent struct {
	StatusID string
}

// FiltersChangedEvent signals that the user's filters changed.
type FiltersChangedEvent struct{}

func (UpdateEvent) EventName() string         { return EventUpdate }
func (NotificationEvent) EventName() string   { return EventNotification }
func (DeleteEvent) EventName() string         { return EventDelete }
func (FiltersChangedEvent) EventName() string { return EventFiltersChanged }

func (UpdateEvent) isEvent()         {}
func (NotificationEvent) isEvent()   {}
func (DeleteEvent) isEvent()         {}
func (FiltersChangedEvent) isEvent() {}

// Frame is one logical message before decoding. Data is nil when the frame
// carried no payload.
type Frame struct {
	EventName string
	Data      *string
}

// MissingDataError reports an event kind that needs a payload but got none.
type MissingDataError struct {
	Event string
}

// Error implements the error interface.
func (e *MissingDataError) Error() string {
	return fmt.Sprintf("stream: %s event has no data", e.Event)
}

// Is reports whether target is ErrMissingData.
func (e *MissingDataError) Is(target error) bool {
	return target == ErrMissingData
}

// UnknownEventError reports an event name the decoder does not handle.
type UnknownEventError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("stream: unknown event %q", e.Name)
}

// PayloadError reports a payload that is not valid JSON for its event kind.
type PayloadError struct {
	Event string
	Err   error
}

// Error implements the error interface.
func (e *PayloadError) Error() string {
	return fmt.Sprintf("stream: decode %s payload: %v", e.Event, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *PayloadError) Unwrap() error {
	return e.Err
}

// Decode maps a frame to its typed event.
func Decode(f Frame) (Event, error) {
	switch f.EventName {
	case EventUpdate:
		if f.Data == nil {
			return nil, &MissingDataError{Event: f.EventName}
		}
		var status entities.Status
		if err := json.Unmarshal([]byte(*f.Data), &status); err != nil {
			return nil, &PayloadError{Event: f.EventName, Err: err}
		}
		return UpdateEvent{Status: status}, nil

	case EventNotification:
		if f.Data == nil {
			return nil, &MissingDataError{Event: f.EventName}
		}
		var n entities.Notification
		if err := json.Unmarshal([]byte(*f.Data), &n); err != nil {
			return nil, &PayloadError{Event: f.EventName, Err: err}
		}
		return NotificationEvent{Notification: n}, nil

	case EventDelete:
		if f.Data == nil {
			return nil, &MissingDataError{Event: f.EventName}
		}
		return DeleteEvent{StatusID: *f.Data}, nil

	case EventFiltersChanged:
		return FiltersChangedEvent{}, nil

	default:
		return nil, &UnknownEventError{Name: f.EventName}
	}
}
