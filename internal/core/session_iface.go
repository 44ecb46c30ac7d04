package core

// SessionID identifies one live signal connection.
// It is unique per connection, not per browser.
type SessionID string
