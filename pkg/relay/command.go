package relay

// Command is the wire name of an outbound command.
type Command string

const (
	CmdConfigure          Command = "configure"
	CmdRequestPermissions Command = "requestPermissions"
	CmdRegisterForPush    Command = "registerForPushNotifications"
	CmdCheckPermissions   Command = "checkPermissions"
	CmdSendTag            Command = "sendTag"
	CmdSendTags           Command = "sendTags"
	CmdGetTags            Command = "getTags"
	CmdDeleteTag          Command = "deleteTag"
	CmdEnableVibrate      Command = "enableVibrate"
	CmdEnableSound        Command = "enableSound"
	CmdSetSubscription    Command = "setSubscription"
	CmdPromptLocation     Command = "promptLocation"
	CmdInFocusDisplaying  Command = "inFocusDisplaying"
	CmdPostNotification   Command = "postNotification"
	CmdClearNotifications Command = "clearNotifications"
	CmdCancelNotification Command = "cancelNotification"
	CmdSyncHashedEmail    Command = "syncHashedEmail"
	CmdSetLogLevel        Command = "setLogLevel"
)
