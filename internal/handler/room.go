package handler

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/facility-reservation/internal/model"
    "github.com/iliyamo/facility-reservation/internal/repository"
)

// RoomHandler exposes owner-facing room management plus member-facing
// browsing.  Ownership of a room is enforced at the repository layer by
// scoping updates to (id, owner_id).
type RoomHandler struct {
    Rooms *repository.RoomRepo
}

func NewRoomHandler(rooms *repository.RoomRepo) *RoomHandler {
    if rooms == nil {
        panic("nil repository passed to NewRoomHandler")
    }
    return &RoomHandler{Rooms: rooms}
}

type roomReq struct {
    Name        string  `json:"name"`
    Description *string `json:"description"`
    Capacity    *uint32 `json:"capacity"`
    Location    *string `json:"location"`
    IsActive    *bool   `json:"is_active"`
}

// CreateRoom handles POST /v1/owner/rooms.
func (h *RoomHandler) CreateRoom(c echo.Context) error {
    ownerID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    var req roomReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }
    req.Name = strings.TrimSpace(req.Name)
    if req.Name == "" {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
    }
    room := &model.Room{
        OwnerID:     ownerID,
        Name:        req.Name,
        Description: req.Description,
        Capacity:    req.Capacity,
        Location:    req.Location,
    }
    if err := h.Rooms.Create(c.Request().Context(), room); err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create room failed"})
    }
    return c.JSON(http.StatusCreated, echo.Map{"room": room})
}

// ListMyRooms handles GET /v1/owner/rooms.
func (h *RoomHandler) ListMyRooms(c echo.Context) error {
    ownerID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    rooms, err := h.Rooms.ListByOwner(c.Request().Context(), ownerID)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": rooms})
}

// UpdateRoom handles PATCH /v1/owner/rooms/:id.  Absent fields keep
// their current values; is_active toggles whether members can book.
func (h *RoomHandler) UpdateRoom(c echo.Context) error {
    ownerID, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    roomID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || roomID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
    }
    var req roomReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
    }

    ctx := c.Request().Context()
    room, err := h.Rooms.GetByID(ctx, roomID)
    if err != nil {
        if err == repository.ErrRoomNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    if room.OwnerID != ownerID {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
    }
    if name := strings.TrimSpace(req.Name); name != "" {
        room.Name = name
    }
    if req.Description != nil {
        room.Description = req.Description
    }
    if req.Capacity != nil {
        room.Capacity = req.Capacity
    }
    if req.Location != nil {
        room.Location = req.Location
    }
    if req.IsActive != nil {
        room.IsActive = *req.IsActive
    }
    if err := h.Rooms.UpdateByIDAndOwner(ctx, room); err != nil {
        if err == repository.ErrRoomNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update room failed"})
    }
    return c.JSON(http.StatusOK, echo.Map{"room": room})
}

// ListRooms handles GET /v1/rooms for any authenticated user.
func (h *RoomHandler) ListRooms(c echo.Context) error {
    rooms, err := h.Rooms.ListActive(c.Request().Context())
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": rooms})
}

// GetRoom handles GET /v1/rooms/:id.
func (h *RoomHandler) GetRoom(c echo.Context) error {
    roomID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || roomID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid room id"})
    }
    room, err := h.Rooms.GetByID(c.Request().Context(), roomID)
    if err != nil {
        if err == repository.ErrRoomNotFound {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "room not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
    }
    return c.JSON(http.StatusOK, echo.Map{"room": room})
}
