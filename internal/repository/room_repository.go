package repository

import (
    "context"
    "database/sql"
    "errors"

    "github.com/iliyamo/facility-reservation/internal/model"
)

// RoomRepo provides persistence for bookable rooms.  Mutating
// operations are owner-scoped to enforce resource ownership at the
// storage layer.
type RoomRepo struct {
    db *sql.DB
}

// NewRoomRepo constructs a RoomRepo with the given DB handle.
func NewRoomRepo(db *sql.DB) *RoomRepo { return &RoomRepo{db: db} }

const roomColumns = `id, owner_id, name, description, capacity, location, is_active, created_at, updated_at`

// Create inserts a new room and reads the row back so defaults and
// timestamps are populated.
func (r *RoomRepo) Create(ctx context.Context, room *model.Room) error {
    const q = `INSERT INTO rooms (owner_id, name, description, capacity, location) VALUES (?, ?, ?, ?, ?)`
    result, err := r.db.ExecContext(ctx, q, room.OwnerID, room.Name, room.Description, room.Capacity, room.Location)
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    room.ID = uint64(id)
    sel := `SELECT ` + roomColumns + ` FROM rooms WHERE id = ?`
    return r.db.QueryRowContext(ctx, sel, room.ID).Scan(
        &room.ID, &room.OwnerID, &room.Name, &room.Description, &room.Capacity,
        &room.Location, &room.IsActive, &room.CreatedAt, &room.UpdatedAt,
    )
}

// GetByID retrieves a room regardless of owner, returning
// ErrRoomNotFound when no row matches.
func (r *RoomRepo) GetByID(ctx context.Context, id uint64) (*model.Room, error) {
    q := `SELECT ` + roomColumns + ` FROM rooms WHERE id = ?`
    var room model.Room
    err := r.db.QueryRowContext(ctx, q, id).Scan(
        &room.ID, &room.OwnerID, &room.Name, &room.Description, &room.Capacity,
        &room.Location, &room.IsActive, &room.CreatedAt, &room.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, ErrRoomNotFound
        }
        return nil, err
    }
    return &room, nil
}

// ListByOwner returns all rooms managed by the owner, ordered by id.
func (r *RoomRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]*model.Room, error) {
    q := `SELECT ` + roomColumns + ` FROM rooms WHERE owner_id = ? ORDER BY id`
    return r.listRooms(ctx, q, ownerID)
}

// ListActive returns all active rooms for member-facing browsing.
func (r *RoomRepo) ListActive(ctx context.Context) ([]*model.Room, error) {
    q := `SELECT ` + roomColumns + ` FROM rooms WHERE is_active = 1 ORDER BY id`
    return r.listRooms(ctx, q)
}

// UpdateByIDAndOwner updates a room's editable fields when it belongs
// to the given owner.  Returns ErrRoomNotFound when no row matches.
func (r *RoomRepo) UpdateByIDAndOwner(ctx context.Context, room *model.Room) error {
    const q = `UPDATE rooms
               SET name = ?, description = ?, capacity = ?, location = ?, is_active = ?, updated_at = CURRENT_TIMESTAMP
               WHERE id = ? AND owner_id = ?`
    result, err := r.db.ExecContext(ctx, q,
        room.Name, room.Description, room.Capacity, room.Location, room.IsActive, room.ID, room.OwnerID)
    if err != nil {
        return err
    }
    if n, _ := result.RowsAffected(); n == 0 {
        return ErrRoomNotFound
    }
    return nil
}

func (r *RoomRepo) listRooms(ctx context.Context, query string, args ...interface{}) ([]*model.Room, error) {
    rows, err := r.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]*model.Room, 0)
    for rows.Next() {
        room := new(model.Room)
        if err := rows.Scan(
            &room.ID, &room.OwnerID, &room.Name, &room.Description, &room.Capacity,
            &room.Location, &room.IsActive, &room.CreatedAt, &room.UpdatedAt,
        ); err != nil {
            return nil, err
        }
        out = append(out, room)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}
