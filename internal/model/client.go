package model

// ConnectionID identifies one transport connection for its whole lifetime
type ConnectionID string

// Client is the public view of a connection inside a board
type Client struct {
	ID   ConnectionID `json:"id"`
	Data any          `json:"data"`
}
