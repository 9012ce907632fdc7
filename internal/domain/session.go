package domain

// Session is the server-side record of one connected client. RoomID and
// DisplayName are populated on a successful join and RoomID never changes
// afterwards; switching rooms is modeled as leave plus rejoin.
type Session struct {
	ConnID      ConnID
	RoomID      RoomID
	DisplayName string
	Muted       bool
}

// Joined reports whether the session is currently a member of a room.
func (s *Session) Joined() bool { return s.RoomID != "" }
