package domain

// RoomName is the opaque key clients use to meet in a room.
type RoomName string

// RoomInfo is a read-only summary for listings.
type RoomInfo struct {
	Name        RoomName `json:"name"`
	MemberCount int      `json:"client_count"`
}
