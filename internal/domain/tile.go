package domain

// TileID is the opaque tile identifier assigned by the realtime session.
type TileID int

// TileState describes one video tile as reported by the realtime session.
type TileState struct {
	TileID          TileID     `json:"tileId"`
	BoundAttendeeID AttendeeID `json:"attendeeId"`
	LocalTile       bool       `json:"localTile"`
	IsContent       bool       `json:"isContent"`
	Active          bool       `json:"active"`
}
