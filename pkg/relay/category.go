// --- File: pkg/relay/category.go ---
// Package relay contains the public types and interfaces shared by the
// notification relay and its collaborators.
package relay

import "fmt"

// EventCategory is one of the fixed notification lifecycle event kinds the
// relay understands. The zero value is not a valid category.
type EventCategory int

const (
	NotificationReceived EventCategory = iota + 1
	NotificationOpened
	RegistrationCompleted
	IdentifiersAvailable
)

// Wire names of the named events emitted by the delivery subsystem.
const (
	ReceivedEventName   = "remoteNotificationReceived"
	OpenedEventName     = "remoteNotificationOpened"
	RegisteredEventName = "remoteNotificationsRegistered"
	IDsEventName        = "idsAvailable"
)

// Categories returns every valid category in declaration order.
func Categories() []EventCategory {
	return []EventCategory{
		NotificationReceived,
		NotificationOpened,
		RegistrationCompleted,
		IdentifiersAvailable,
	}
}

// ParseCategory maps a wire event name to its category.
func ParseCategory(name string) (EventCategory, error) {
	switch name {
	case ReceivedEventName:
		return NotificationReceived, nil
	case OpenedEventName:
		return NotificationOpened, nil
	case RegisteredEventName:
		return RegistrationCompleted, nil
	case IDsEventName:
		return IdentifiersAvailable, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidCategory, name)
	}
}

// String returns the wire event name.
func (c EventCategory) String() string {
	switch c {
	case NotificationReceived:
		return ReceivedEventName
	case NotificationOpened:
		return OpenedEventName
	case RegistrationCompleted:
		return RegisteredEventName
	case IdentifiersAvailable:
		return IDsEventName
	default:
		return fmt.Sprintf("EventCategory(%d)", int(c))
	}
}

// Valid reports whether c belongs to the closed category set.
func (c EventCategory) Valid() bool {
	switch c {
	case NotificationReceived, NotificationOpened, RegistrationCompleted, IdentifiersAvailable:
		return true
	default:
		return false
	}
}

// Buffered reports whether events of this category are held until a handler
// appears. Only the payload-bearing categories are.
func (c EventCategory) Buffered() bool {
	return c == NotificationReceived || c == NotificationOpened
}

// Validate returns ErrInvalidCategory when c is outside the closed set.
func (c EventCategory) Validate() error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidCategory, c)
	}
	return nil
}
