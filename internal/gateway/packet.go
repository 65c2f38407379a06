package gateway

// Packet is one JSON frame on the game-server connection. Type discriminates
// which of the optional fields are meaningful.
type Packet struct {
	Type string `json:"type"`

	// login / login_failure
	Name   string `json:"name,omitempty"`
	Token  string `json:"token,omitempty"`
	Reason string `json:"reason,omitempty"`

	// settings
	Locale       string `json:"locale,omitempty"`
	ViewDistance int    `json:"view_distance,omitempty"`
	ChatFlags    string `json:"chat_flags,omitempty"`

	// chat
	Message string `json:"message,omitempty"`

	// keep_alive
	KeepAliveID int64 `json:"keep_alive_id,omitempty"`
}

const (
	PacketLogin        = "login"
	PacketLoginSuccess = "login_success"
	PacketLoginFailure = "login_failure"
	PacketSettings     = "settings"
	PacketChat         = "chat"
	PacketKeepAlive    = "keep_alive"
	PacketDisconnect   = "disconnect"
)
