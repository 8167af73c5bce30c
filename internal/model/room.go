package model

import "time"

// Room represents a bookable space inside the venue.  Rooms belong to
// an owner who manages them; members book reservations against them.
// Capacity and Location are informational and do not influence
// conflict checks, which operate purely on date and time interval.
//
// Fields:
//  ID          – primary key identifier.
//  OwnerID     – user ID of the managing owner.
//  Name        – unique room name per owner.
//  Description – optional description of the room.
//  Capacity    – seating capacity (nil if unspecified).
//  Location    – optional floor/wing label.
//  IsActive    – inactive rooms reject new reservations.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Room struct {
    ID          uint64    `json:"id"`
    OwnerID     uint64    `json:"owner_id"`
    Name        string    `json:"name"`
    Description *string   `json:"description,omitempty"`
    Capacity    *uint32   `json:"capacity,omitempty"`
    Location    *string   `json:"location,omitempty"`
    IsActive    bool      `json:"is_active"`
    CreatedAt   time.Time `json:"created_at"`
    UpdatedAt   time.Time `json:"updated_at"`
}
