package storage

const DefaultKeyPrefix = "session:products:"

// SessionKey returns the hash key holding every product record of a session.
func SessionKey(prefix, sessionID string) string {
	return prefix + sessionID
}
