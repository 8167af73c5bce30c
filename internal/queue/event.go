// Package queue defines message payloads exchanged over the message broker.
package queue

// ReservationEvent is published after a reservation is created, has
// its status changed, or is cancelled.  It carries enough for
// downstream consumers to log or notify without querying the primary
// database.
type ReservationEvent struct {
    Kind          string `json:"kind"`
    ReservationID uint64 `json:"reservation_id"`
    RoomID        uint64 `json:"room_id"`
    UserID        uint64 `json:"user_id"`
    Date          string `json:"date"`
    StartTime     string `json:"start_time"`
    EndTime       string `json:"end_time"`
    Status        string `json:"status"`
    Purpose       string `json:"purpose,omitempty"`
    SeriesID      string `json:"series_id,omitempty"`
    OccurredAt    string `json:"occurred_at"`
}
