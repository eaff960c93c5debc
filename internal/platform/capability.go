// Package platform decides which outbound commands the host platform supports.
package platform

import "github.com/tinywideclouds/go-notification-relay/pkg/relay"

// restricted maps platform-specific commands to the only platform that runs
// them. Commands not listed run everywhere.
var restricted = map[relay.Command]relay.Platform{
	relay.CmdRequestPermissions: relay.PlatformIOS,
	relay.CmdRegisterForPush:    relay.PlatformIOS,
	relay.CmdCheckPermissions:   relay.PlatformIOS,
	relay.CmdEnableVibrate:      relay.PlatformAndroid,
	relay.CmdEnableSound:        relay.PlatformAndroid,
	relay.CmdInFocusDisplaying:  relay.PlatformAndroid,
	relay.CmdClearNotifications: relay.PlatformAndroid,
	relay.CmdCancelNotification: relay.PlatformAndroid,
}

// Supports reports whether cmd may be forwarded on p.
func Supports(p relay.Platform, cmd relay.Command) bool {
	only, ok := restricted[cmd]
	return !ok || only == p
}

// EncodesPostBody reports whether postNotification contents and data must
// be sent as JSON strings rather than structured values.
func EncodesPostBody(p relay.Platform) bool {
	return p == relay.PlatformAndroid
}
