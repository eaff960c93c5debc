package relay

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Notification is the decoded notification record. The relay never
// interprets its fields.
type Notification map[string]any

// OpenResult is the decoded result of a user opening a notification.
type OpenResult struct {
	Notification Notification   `json:"notification"`
	Action       map[string]any `json:"action,omitempty"`
}

// Payload is an opaque registration or identifiers record.
type Payload map[string]any

// Event is what a registered Handler receives. Exactly one of Notification,
// OpenResult or Payload is set, depending on Category.
type Event struct {
	Category     EventCategory
	Notification Notification
	OpenResult   *OpenResult
	Payload      Payload
}

// Handler receives relayed events. The handler value itself is its identity
// in the registry, so implementations must be comparable (pointer types are
// the usual choice).
type Handler interface {
	HandleEvent(Event)
}

// CommandReplyEvent is the event name the delivery subsystem uses to answer
// commands that take a callback.
const CommandReplyEvent = "commandReply"

// InboundEvent is the envelope carried on the inbound event stream.
type InboundEvent struct {
	Name    string          `json:"event"`
	Body    json.RawMessage `json:"body,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
}

type receivedBody struct {
	Notification *string `json:"notification"`
}

type openedBody struct {
	Result *string `json:"result"`
}

var errMissingField = errors.New("missing encoded field")

// ExtractEncoded pulls the transport-encoded string out of a received or
// opened event body.
func ExtractEncoded(c EventCategory, body json.RawMessage) (string, error) {
	switch c {
	case NotificationReceived:
		var b receivedBody
		if err := json.Unmarshal(body, &b); err != nil {
			return "", &PayloadDecodeError{Category: c, Err: err}
		}
		if b.Notification == nil {
			return "", &PayloadDecodeError{Category: c, Err: fmt.Errorf("%w: notification", errMissingField)}
		}
		return *b.Notification, nil
	case NotificationOpened:
		var b openedBody
		if err := json.Unmarshal(body, &b); err != nil {
			return "", &PayloadDecodeError{Category: c, Err: err}
		}
		if b.Result == nil {
			return "", &PayloadDecodeError{Category: c, Err: fmt.Errorf("%w: result", errMissingField)}
		}
		return *b.Result, nil
	default:
		return "", fmt.Errorf("%w: %s carries no encoded payload", ErrInvalidCategory, c)
	}
}

// DecodeNotification decodes an encoded notification string.
func DecodeNotification(encoded string) (Notification, error) {
	var n Notification
	if err := json.Unmarshal([]byte(encoded), &n); err != nil {
		return nil, &PayloadDecodeError{Category: NotificationReceived, Err: err}
	}
	if n == nil {
		return nil, &PayloadDecodeError{Category: NotificationReceived, Err: errors.New("null notification")}
	}
	return n, nil
}

// DecodeOpenResult decodes an encoded open result string.
func DecodeOpenResult(encoded string) (OpenResult, error) {
	var r *OpenResult
	if err := json.Unmarshal([]byte(encoded), &r); err != nil {
		return OpenResult{}, &PayloadDecodeError{Category: NotificationOpened, Err: err}
	}
	if r == nil {
		return OpenResult{}, &PayloadDecodeError{Category: NotificationOpened, Err: errors.New("null open result")}
	}
	return *r, nil
}

// DecodePayload decodes a registration or identifiers body.
func DecodePayload(c EventCategory, body json.RawMessage) (Payload, error) {
	var p Payload
	if len(body) == 0 {
		return Payload{}, nil
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &PayloadDecodeError{Category: c, Err: err}
	}
	if p == nil {
		p = Payload{}
	}
	return p, nil
}

// DecodeEvent decodes a raw event body of any category into an Event.
func DecodeEvent(c EventCategory, body json.RawMessage) (Event, error) {
	switch c {
	case NotificationReceived, NotificationOpened:
		encoded, err := ExtractEncoded(c, body)
		if err != nil {
			return Event{}, err
		}
		return DecodeEncoded(c, encoded)
	case RegistrationCompleted, IdentifiersAvailable:
		p, err := DecodePayload(c, body)
		if err != nil {
			return Event{}, err
		}
		return Event{Category: c, Payload: p}, nil
	default:
		return Event{}, c.Validate()
	}
}

// DecodeEncoded decodes the encoded string of a buffered category.
func DecodeEncoded(c EventCategory, encoded string) (Event, error) {
	switch c {
	case NotificationReceived:
		n, err := DecodeNotification(encoded)
		if err != nil {
			return Event{}, err
		}
		return Event{Category: c, Notification: n}, nil
	case NotificationOpened:
		r, err := DecodeOpenResult(encoded)
		if err != nil {
			return Event{}, err
		}
		return Event{Category: c, OpenResult: &r}, nil
	default:
		return Event{}, fmt.Errorf("%w: %s is not buffered", ErrInvalidCategory, c)
	}
}
