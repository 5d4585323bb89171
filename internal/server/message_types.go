package server

// MessageType names a websocket message.
type MessageType string

const (
	// Client to server messages
	MessageTypeHello        MessageType = "hello"
	MessageTypeCreateGame   MessageType = "create_game"
	MessageTypeJoinGame     MessageType = "join_game"
	MessageTypeLeaveGame    MessageType = "leave_game"
	MessageTypeStartGame    MessageType = "start_game"
	MessageTypeProposeCard  MessageType = "propose_card"
	MessageTypeChangeTopic  MessageType = "change_topic"
	MessageTypeCancelGame   MessageType = "cancel_game"
	MessageTypeForceEndGame MessageType = "force_end_game"
	MessageTypeDeleteGame   MessageType = "delete_game"
	MessageTypeGetGame      MessageType = "get_game"

	// Server to client messages
	MessageTypeWelcome      MessageType = "welcome"
	MessageTypeGameState    MessageType = "game_state"
	MessageTypeHand         MessageType = "hand"
	MessageTypeCardProposed MessageType = "card_proposed"
	MessageTypeGameEnded    MessageType = "game_ended"
	MessageTypeGameDeleted  MessageType = "game_deleted"
	MessageTypeError        MessageType = "error"
)

func (mt MessageType) String() string {
	return string(mt)
}

// Protocol error codes. Game rule failures use the game error codes.
const (
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeUnknownType      = "UNKNOWN_MESSAGE_TYPE"
	ErrCodeNotAuthenticated = "NOT_AUTHENTICATED"
)
