package domain

// Member is one roster entry as clients see it.
// No transport or lifecycle logic here.
type Member struct {
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}
