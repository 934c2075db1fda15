package model

// Event names understood by the server
const (
	EventBoardCreate       = "board:create"
	EventBoardJoin         = "board:join"
	EventBoardLeave        = "board:leave"
	EventBoardUpdate       = "board:update"
	EventBoardClientUpdate = "board:client:update"

	EventSoundPlay    = "sound:play"
	EventSoundUpdate  = "sound:update"
	EventSoundDelete  = "sound:delete"
	EventSoundMissing = "sound:missing"
	EventSoundFetch   = "sound:fetch"

	// EventAck answers a frame that carried a correlation id, in either direction
	EventAck = "ack"
)

// Event names broadcast to board members
const (
	EventBoardJoined        = "board:joined"
	EventBoardLeft          = "board:left"
	EventBoardUpdated       = "board:updated"
	EventBoardClientUpdated = "board:client:updated"

	EventSoundPlayed  = "sound:played"
	EventSoundUpdated = "sound:updated"
	EventSoundDeleted = "sound:deleted"
)

// ClientPayload carries a client for joined/left/client-updated events
type ClientPayload struct {
	Client Client `json:"client"`
}

// BoardPayload carries the full board state for updated events
type BoardPayload struct {
	Board *Board `json:"board"`
}

// SoundIDPayload carries a sound identifier
type SoundIDPayload struct {
	SoundID string `json:"soundId"`
}

// SoundPayload carries an opaque sound document
type SoundPayload struct {
	Sound any `json:"sound"`
}
