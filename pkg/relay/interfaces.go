// --- File: pkg/relay/interfaces.go ---
package relay

import (
	"context"
	"fmt"
)

// Platform identifies the host platform; some commands only exist on one.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
)

// ParsePlatform validates a platform name.
func ParsePlatform(s string) (Platform, error) {
	switch p := Platform(s); p {
	case PlatformIOS, PlatformAndroid:
		return p, nil
	default:
		return "", fmt.Errorf("unknown platform %q", s)
	}
}

// Permissions are the iOS notification permission flags.
type Permissions struct {
	Alert bool `json:"alert"`
	Badge bool `json:"badge"`
	Sound bool `json:"sound"`
}

// DisplayOption controls how a notification is shown while the app is in focus.
type DisplayOption int

const (
	DisplayNone DisplayOption = iota
	DisplayInAppAlert
	DisplayNotification
)

// LogLevel is the delivery subsystem's log verbosity.
type LogLevel int

const (
	LogLevelNone LogLevel = iota
	LogLevelFatal
	LogLevelError
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelVerbose
)

// ActivationState tracks the one-time begin-relay command.
type ActivationState int32

const (
	ActivationUninitialized ActivationState = iota
	ActivationAwaitingConnectivity
	ActivationActivated
)

func (s ActivationState) String() string {
	switch s {
	case ActivationUninitialized:
		return "uninitialized"
	case ActivationAwaitingConnectivity:
		return "awaiting_connectivity"
	case ActivationActivated:
		return "activated"
	default:
		return "unknown"
	}
}

// Commander defines the outbound command interface of the delivery
// subsystem. Every call is fire-and-forget; an error only means the command
// could not be handed over.
type Commander interface {
	// Configure is the one-time begin-relay command.
	Configure(ctx context.Context) error
	RequestPermissions(ctx context.Context, perms Permissions) error
	RegisterForPushNotifications(ctx context.Context) error
	CheckPermissions(ctx context.Context, reply func(Permissions)) error
	SendTag(ctx context.Context, key, value string) error
	SendTags(ctx context.Context, tags map[string]string) error
	GetTags(ctx context.Context, reply func(map[string]string)) error
	DeleteTag(ctx context.Context, key string) error
	EnableVibrate(ctx context.Context, enable bool) error
	EnableSound(ctx context.Context, enable bool) error
	SetSubscription(ctx context.Context, enable bool) error
	PromptLocation(ctx context.Context) error
	SetInFocusDisplaying(ctx context.Context, option DisplayOption) error
	// PostNotification takes already platform-encoded contents and data.
	PostNotification(ctx context.Context, contents, data any, playerID string) error
	ClearNotifications(ctx context.Context) error
	CancelNotification(ctx context.Context, id int) error
	SyncHashedEmail(ctx context.Context, email string) error
	SetLogLevel(ctx context.Context, logLevel, visualLevel LogLevel) error
}

// PendingStore holds at most one encoded payload per buffered category.
type PendingStore interface {
	// Put stores the payload, replacing any previous one for the category.
	Put(ctx context.Context, category EventCategory, encoded string) error
	// Take atomically removes and returns the stored payload, if any.
	Take(ctx context.Context, category EventCategory) (string, bool, error)
}

// ConnectivityObserver reports network reachability.
type ConnectivityObserver interface {
	// Connected performs a one-shot check.
	Connected(ctx context.Context) (bool, error)
	// Watch calls listener on every connectivity change until stop is
	// called. stop must be safe to call from inside listener.
	Watch(listener func(connected bool)) (stop func())
}
