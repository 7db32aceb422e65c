package protocol

// Commands sent from the bridge to the session host.
const (
	CommandStartSession = "start-session"
	CommandSendMessage  = "send-message"
	CommandLogout       = "logout"
	CommandGetIdentity  = "get-identity"
)

// Events sent from the session host to the bridge.
const (
	EventServerReady      = "server-ready"
	EventPairingToken     = "pairing-token"
	EventConnectionStatus = "connection-status"
	EventMessageSent      = "message-sent"
	EventLogoutComplete   = "logout-complete"
	EventIdentity         = "identity"
	EventSessionError     = "session-error"
)

const (
	StatusOpen   = "open"
	StatusClosed = "closed"

	// ReasonLoggedOut on a closed status ends the session instead of reconnecting.
	ReasonLoggedOut = "logged out"
)
