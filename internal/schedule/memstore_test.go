package schedule

import (
    "context"
    "sync"
    "time"

    "github.com/iliyamo/facility-reservation/internal/model"
)

// memStore is an in-memory Store used to exercise the scheduler
// without a database.  Multi-row methods mutate the map only after all
// rows are prepared, mirroring the all-or-nothing contract.
type memStore struct {
    mu     sync.Mutex
    nextID uint64
    rows   map[uint64]*model.Reservation
}

func newMemStore() *memStore {
    return &memStore{rows: make(map[uint64]*model.Reservation)}
}

func (s *memStore) put(res *model.Reservation) {
    s.nextID++
    res.ID = s.nextID
    now := time.Now().UTC()
    res.CreatedAt = now
    res.UpdatedAt = now
    clone := *res
    s.rows[res.ID] = &clone
}

func (s *memStore) Insert(_ context.Context, res *model.Reservation) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.put(res)
    return nil
}

func (s *memStore) InsertSeries(_ context.Context, anchor *model.Reservation, children []*model.Reservation) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.put(anchor)
    for _, c := range children {
        parentID := anchor.ID
        c.ParentID = &parentID
        s.put(c)
    }
    return nil
}

func (s *memStore) PromoteToSeries(_ context.Context, anchor *model.Reservation, children []*model.Reservation) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if row, ok := s.rows[anchor.ID]; ok {
        row.SeriesID = anchor.SeriesID
        row.Rule = anchor.Rule
    }
    for _, c := range children {
        parentID := anchor.ID
        c.ParentID = &parentID
        s.put(c)
    }
    return nil
}

func (s *memStore) AppendToSeries(_ context.Context, seriesID string, children []*model.Reservation, newEnd time.Time) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, c := range children {
        s.put(c)
    }
    for _, row := range s.rows {
        if row.SeriesID != nil && *row.SeriesID == seriesID && row.Rule != nil {
            row.Rule.EndDate = newEnd
        }
    }
    return nil
}

func (s *memStore) RebuildSeries(_ context.Context, anchor *model.Reservation, children []*model.Reservation) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for id, row := range s.rows {
        if row.SeriesID != nil && anchor.SeriesID != nil && *row.SeriesID == *anchor.SeriesID && row.ParentID != nil {
            delete(s.rows, id)
        }
    }
    if row, ok := s.rows[anchor.ID]; ok {
        row.Date = anchor.Date
        row.Rule = anchor.Rule
    }
    for _, c := range children {
        parentID := anchor.ID
        c.ParentID = &parentID
        s.put(c)
    }
    return nil
}

func (s *memStore) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    row, ok := s.rows[id]
    if !ok {
        return nil, ErrNotFound
    }
    clone := *row
    return &clone, nil
}

func (s *memStore) ListBySeries(_ context.Context, seriesID string) ([]*model.Reservation, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []*model.Reservation
    for _, row := range s.rows {
        if row.SeriesID != nil && *row.SeriesID == seriesID {
            clone := *row
            out = append(out, &clone)
        }
    }
    return out, nil
}

func (s *memStore) ListActiveByRoomAndDate(_ context.Context, roomID uint64, date time.Time) ([]*model.Reservation, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    var out []*model.Reservation
    for _, row := range s.rows {
        if row.RoomID == roomID && DateOnly(row.Date).Equal(DateOnly(date)) && row.IsActive() {
            clone := *row
            out = append(out, &clone)
        }
    }
    return out, nil
}

func (s *memStore) Update(_ context.Context, id uint64, patch FieldPatch) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    row, ok := s.rows[id]
    if !ok {
        return ErrNotFound
    }
    applyPatch(row, patch)
    return nil
}

func (s *memStore) UpdateGroup(_ context.Context, seriesID string, patch FieldPatch) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for _, row := range s.rows {
        if row.SeriesID != nil && *row.SeriesID == seriesID {
            applyPatch(row, patch)
        }
    }
    return nil
}

func (s *memStore) Delete(_ context.Context, id uint64) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.rows[id]; !ok {
        return ErrNotFound
    }
    delete(s.rows, id)
    return nil
}

func (s *memStore) DeleteSeries(_ context.Context, seriesID string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    for id, row := range s.rows {
        if row.SeriesID != nil && *row.SeriesID == seriesID {
            delete(s.rows, id)
        }
    }
    return nil
}

func (s *memStore) count() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.rows)
}

func applyPatch(row *model.Reservation, patch FieldPatch) {
    if patch.RoomID != nil {
        row.RoomID = *patch.RoomID
    }
    if patch.Date != nil {
        row.Date = DateOnly(*patch.Date)
    }
    if patch.StartTime != nil {
        row.StartTime = *patch.StartTime
    }
    if patch.EndTime != nil {
        row.EndTime = *patch.EndTime
    }
    if patch.Status != nil {
        row.Status = model.NormalizeStatus(*patch.Status)
    }
    if patch.Purpose != nil {
        row.Purpose = *patch.Purpose
    }
    if patch.Visibility != nil {
        row.Visibility = *patch.Visibility
    }
}

// noopLocker satisfies Locker for single-goroutine tests.
type noopLocker struct{}

func (noopLocker) Acquire(context.Context, uint64) (func(), error) {
    return func() {}, nil
}

// recordingNotifier captures event kinds for assertions.  failWith, when
// set, makes every Notify call fail to prove the scheduler shrugs it off.
type recordingNotifier struct {
    mu       sync.Mutex
    kinds    []string
    failWith error
}

func (n *recordingNotifier) Notify(_ context.Context, kind string, _ *model.Reservation) error {
    n.mu.Lock()
    defer n.mu.Unlock()
    n.kinds = append(n.kinds, kind)
    return n.failWith
}

func (n *recordingNotifier) recorded() []string {
    n.mu.Lock()
    defer n.mu.Unlock()
    return append([]string(nil), n.kinds...)
}
