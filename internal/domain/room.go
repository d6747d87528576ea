package domain

// RoomID matches the externally-defined lesson session identifier.
// Presence never validates it against persistent storage.
type RoomID string
