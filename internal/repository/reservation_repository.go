package repository

import (
    "context"
    "database/sql"
    "errors"
    "strconv"
    "strings"
    "time"

    "github.com/iliyamo/facility-reservation/internal/model"
    "github.com/iliyamo/facility-reservation/internal/schedule"
)

// reservationColumns is the scan list shared by every query that
// returns full reservation rows.
const reservationColumns = `id, room_id, user_id, date, start_time, end_time, status, purpose, visibility,
       series_id, parent_id, recurrence_pattern, recurrence_weekdays, recurrence_week_of_month,
       recurrence_weekday, recurrence_end, created_at, updated_at`

// ReservationRepo provides CRUD operations for reservations and
// implements schedule.Store.  Recurrence pattern columns are populated
// only on a series' anchor row; recurrence_end is mirrored onto every
// member so the declared end date stays consistent across the series.
// Multi-row operations run in a single transaction so a batch commits
// every row or none.
type ReservationRepo struct {
    db *sql.DB
}

// NewReservationRepo returns a ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

// DB exposes the underlying handle for callers that need to compose
// their own transactions.
func (r *ReservationRepo) DB() *sql.DB { return r.db }

// Insert persists one reservation and reads the row back to populate
// generated ID, defaults and timestamps.
func (r *ReservationRepo) Insert(ctx context.Context, res *model.Reservation) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := r.insertTx(ctx, tx, res); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// InsertSeries writes the anchor first, stamps its generated ID as the
// parent of every child, then bulk-inserts the children.  One
// transaction covers the whole batch.
func (r *ReservationRepo) InsertSeries(ctx context.Context, anchor *model.Reservation, children []*model.Reservation) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := r.insertTx(ctx, tx, anchor); err != nil {
        return err
    }
    for _, child := range children {
        parentID := anchor.ID
        child.ParentID = &parentID
    }
    if err := r.insertChildrenTx(ctx, tx, children, anchorEnd(anchor)); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// PromoteToSeries rewrites an existing singleton row into a series
// anchor and inserts the children in the same transaction.
func (r *ReservationRepo) PromoteToSeries(ctx context.Context, anchor *model.Reservation, children []*model.Reservation) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    const q = `UPDATE reservations
               SET series_id = ?, recurrence_pattern = ?, recurrence_weekdays = ?,
                   recurrence_week_of_month = ?, recurrence_weekday = ?, recurrence_end = ?,
                   updated_at = CURRENT_TIMESTAMP
               WHERE id = ?`
    pattern, weekdays, weekOfMonth, weekday, endDate := ruleColumns(anchor.Rule)
    result, err := tx.ExecContext(ctx, q, anchor.SeriesID, pattern, weekdays, weekOfMonth, weekday, endDate, anchor.ID)
    if err != nil {
        return err
    }
    if n, _ := result.RowsAffected(); n == 0 {
        return schedule.ErrNotFound
    }
    for _, child := range children {
        parentID := anchor.ID
        child.ParentID = &parentID
    }
    if err := r.insertChildrenTx(ctx, tx, children, anchorEnd(anchor)); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// AppendToSeries inserts new children and moves recurrence_end on
// every member row to newEnd, atomically.
func (r *ReservationRepo) AppendToSeries(ctx context.Context, seriesID string, children []*model.Reservation, newEnd time.Time) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if err := r.insertChildrenTx(ctx, tx, children, newEnd.Format(schedule.DateLayout)); err != nil {
        return err
    }
    const q = `UPDATE reservations SET recurrence_end = ?, updated_at = CURRENT_TIMESTAMP WHERE series_id = ?`
    if _, err := tx.ExecContext(ctx, q, newEnd.Format(schedule.DateLayout), seriesID); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// RebuildSeries deletes the old children, rewrites the anchor's date
// and rule, and inserts the recreated children in one transaction.
func (r *ReservationRepo) RebuildSeries(ctx context.Context, anchor *model.Reservation, children []*model.Reservation) error {
    if anchor.SeriesID == nil {
        return errors.New("rebuild requires an anchor with a series id")
    }
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    const del = `DELETE FROM reservations WHERE series_id = ? AND parent_id IS NOT NULL`
    if _, err := tx.ExecContext(ctx, del, *anchor.SeriesID); err != nil {
        return err
    }
    const upd = `UPDATE reservations
                 SET date = ?, recurrence_pattern = ?, recurrence_weekdays = ?,
                     recurrence_week_of_month = ?, recurrence_weekday = ?, recurrence_end = ?,
                     updated_at = CURRENT_TIMESTAMP
                 WHERE id = ?`
    pattern, weekdays, weekOfMonth, weekday, endDate := ruleColumns(anchor.Rule)
    if _, err := tx.ExecContext(ctx, upd, anchor.Date.Format(schedule.DateLayout),
        pattern, weekdays, weekOfMonth, weekday, endDate, anchor.ID); err != nil {
        return err
    }
    for _, child := range children {
        parentID := anchor.ID
        child.ParentID = &parentID
    }
    if err := r.insertChildrenTx(ctx, tx, children, anchorEnd(anchor)); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// GetByID returns one reservation or schedule.ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
    res, err := scanReservation(r.db.QueryRowContext(ctx, q, id))
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, schedule.ErrNotFound
        }
        return nil, err
    }
    return res, nil
}

// ListBySeries returns every member of a series ordered by date.
func (r *ReservationRepo) ListBySeries(ctx context.Context, seriesID string) ([]*model.Reservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations WHERE series_id = ? ORDER BY date, id`
    return r.list(ctx, q, seriesID)
}

// ListActiveByRoomAndDate returns the PENDING and CONFIRMED rows
// occupying the room on the given date.  Cancelled rows never
// participate in conflict checks and are filtered here.
func (r *ReservationRepo) ListActiveByRoomAndDate(ctx context.Context, roomID uint64, date time.Time) ([]*model.Reservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations
          WHERE room_id = ? AND date = ? AND status <> 'CANCELLED'
          ORDER BY start_time, id`
    return r.list(ctx, q, roomID, date.Format(schedule.DateLayout))
}

// ListByRoomAndDateRange returns all rows for a room between from and
// to inclusive, for availability listings.
func (r *ReservationRepo) ListByRoomAndDateRange(ctx context.Context, roomID uint64, from, to time.Time) ([]*model.Reservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations
          WHERE room_id = ? AND date >= ? AND date <= ?
          ORDER BY date, start_time, id`
    return r.list(ctx, q, roomID, from.Format(schedule.DateLayout), to.Format(schedule.DateLayout))
}

// ListByUser returns a user's reservations, newest date first.
func (r *ReservationRepo) ListByUser(ctx context.Context, userID uint64) ([]*model.Reservation, error) {
    q := `SELECT ` + reservationColumns + ` FROM reservations WHERE user_id = ? ORDER BY date DESC, start_time, id`
    return r.list(ctx, q, userID)
}

// Update applies a partial field patch to one row.  The SET clause is
// assembled from the non-nil patch fields only.
func (r *ReservationRepo) Update(ctx context.Context, id uint64, patch schedule.FieldPatch) error {
    sets, args := patchClauses(patch)
    if len(sets) == 0 {
        return nil
    }
    q := `UPDATE reservations SET ` + strings.Join(sets, ", ") + `, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
    args = append(args, id)
    result, err := r.db.ExecContext(ctx, q, args...)
    if err != nil {
        return err
    }
    if n, _ := result.RowsAffected(); n == 0 {
        // RowsAffected is also zero when the patch matches the current
        // values, so confirm existence before reporting not-found.
        var exists uint64
        if err := r.db.QueryRowContext(ctx, `SELECT id FROM reservations WHERE id = ?`, id).Scan(&exists); err != nil {
            if errors.Is(err, sql.ErrNoRows) {
                return schedule.ErrNotFound
            }
            return err
        }
    }
    return nil
}

// UpdateGroup applies shared fields to every member of a series.
// Per-occurrence fields (date, room) are stripped by the caller.
func (r *ReservationRepo) UpdateGroup(ctx context.Context, seriesID string, patch schedule.FieldPatch) error {
    sets, args := patchClauses(patch.Shared())
    if len(sets) == 0 {
        return nil
    }
    q := `UPDATE reservations SET ` + strings.Join(sets, ", ") + `, updated_at = CURRENT_TIMESTAMP WHERE series_id = ?`
    args = append(args, seriesID)
    _, err := r.db.ExecContext(ctx, q, args...)
    return err
}

// Delete physically removes one reservation (administrative purge only).
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) error {
    result, err := r.db.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
    if err != nil {
        return err
    }
    if n, _ := result.RowsAffected(); n == 0 {
        return schedule.ErrNotFound
    }
    return nil
}

// DeleteSeries physically removes a whole series, children before the
// anchor so the parent foreign key never dangles mid-transaction.
func (r *ReservationRepo) DeleteSeries(ctx context.Context, seriesID string) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    if _, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE series_id = ? AND parent_id IS NOT NULL`, seriesID); err != nil {
        return err
    }
    if _, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE series_id = ?`, seriesID); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// ----- internals -----

func (r *ReservationRepo) insertTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
    const q = `INSERT INTO reservations
               (room_id, user_id, date, start_time, end_time, status, purpose, visibility,
                series_id, parent_id, recurrence_pattern, recurrence_weekdays,
                recurrence_week_of_month, recurrence_weekday, recurrence_end)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    pattern, weekdays, weekOfMonth, weekday, endDate := ruleColumns(res.Rule)
    result, err := tx.ExecContext(ctx, q,
        res.RoomID, res.UserID, res.Date.Format(schedule.DateLayout), res.StartTime, res.EndTime,
        res.Status, res.Purpose, res.Visibility,
        res.SeriesID, res.ParentID, pattern, weekdays, weekOfMonth, weekday, endDate,
    )
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    res.ID = uint64(id)
    // Read the row back to populate timestamps and defaults.
    sel := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
    full, err := scanReservation(tx.QueryRowContext(ctx, sel, res.ID))
    if err != nil {
        return err
    }
    *res = *full
    return nil
}

// insertChildrenTx bulk-inserts child occurrences in a single
// multi-values statement, mirroring the series end date onto each
// row.  An empty slice is a no-op.
func (r *ReservationRepo) insertChildrenTx(ctx context.Context, tx *sql.Tx, children []*model.Reservation, recurrenceEnd interface{}) error {
    if len(children) == 0 {
        return nil
    }
    query := `INSERT INTO reservations
              (room_id, user_id, date, start_time, end_time, status, purpose, visibility,
               series_id, parent_id, recurrence_end) VALUES `
    args := make([]interface{}, 0, len(children)*11)
    for i, c := range children {
        if i > 0 {
            query += ","
        }
        query += "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
        args = append(args, c.RoomID, c.UserID, c.Date.Format(schedule.DateLayout), c.StartTime, c.EndTime,
            c.Status, c.Purpose, c.Visibility, c.SeriesID, c.ParentID, recurrenceEnd)
    }
    result, err := tx.ExecContext(ctx, query, args...)
    if err != nil {
        return err
    }
    // MySQL reports the first generated id of a multi-row insert;
    // subsequent rows follow sequentially within the statement.
    first, err := result.LastInsertId()
    if err != nil {
        return err
    }
    for i, c := range children {
        c.ID = uint64(first) + uint64(i)
    }
    return nil
}

// anchorEnd extracts the anchor's declared end date for mirroring
// onto child rows.
func anchorEnd(anchor *model.Reservation) interface{} {
    if anchor.Rule != nil && !anchor.Rule.EndDate.IsZero() {
        return anchor.Rule.EndDate.Format(schedule.DateLayout)
    }
    return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanReservation.
type rowScanner interface {
    Scan(dest ...interface{}) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
    var (
        res         model.Reservation
        seriesID    sql.NullString
        parentID    sql.NullInt64
        purpose     sql.NullString
        visibility  sql.NullString
        pattern     sql.NullString
        weekdays    sql.NullString
        weekOfMonth sql.NullInt32
        weekday     sql.NullInt32
        recurEnd    sql.NullTime
    )
    if err := row.Scan(
        &res.ID, &res.RoomID, &res.UserID, &res.Date, &res.StartTime, &res.EndTime,
        &res.Status, &purpose, &visibility,
        &seriesID, &parentID, &pattern, &weekdays, &weekOfMonth, &weekday, &recurEnd,
        &res.CreatedAt, &res.UpdatedAt,
    ); err != nil {
        return nil, err
    }
    if purpose.Valid {
        res.Purpose = purpose.String
    }
    if visibility.Valid {
        res.Visibility = visibility.String
    }
    if seriesID.Valid {
        s := seriesID.String
        res.SeriesID = &s
    }
    if parentID.Valid {
        p := uint64(parentID.Int64)
        res.ParentID = &p
    }
    // Pattern columns exist only on the anchor; children carry just the
    // mirrored recurrence_end.
    if pattern.Valid {
        rule := model.RecurrenceRule{Pattern: pattern.String}
        if weekdays.Valid {
            rule.Weekdays = decodeWeekdays(weekdays.String)
        }
        if weekOfMonth.Valid {
            rule.WeekOfMonth = int(weekOfMonth.Int32)
        }
        if weekday.Valid {
            wd := time.Weekday(weekday.Int32)
            rule.Weekday = &wd
        }
        if recurEnd.Valid {
            rule.EndDate = recurEnd.Time
        }
        res.Rule = &rule
    }
    return &res, nil
}

func (r *ReservationRepo) list(ctx context.Context, query string, args ...interface{}) ([]*model.Reservation, error) {
    rows, err := r.db.QueryContext(ctx, query, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]*model.Reservation, 0)
    for rows.Next() {
        res, err := scanReservation(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, res)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// patchClauses turns the non-nil fields of a patch into SET clauses
// and their arguments.
func patchClauses(patch schedule.FieldPatch) (sets []string, args []interface{}) {
    if patch.RoomID != nil {
        sets = append(sets, "room_id = ?")
        args = append(args, *patch.RoomID)
    }
    if patch.Date != nil {
        sets = append(sets, "date = ?")
        args = append(args, patch.Date.Format(schedule.DateLayout))
    }
    if patch.StartTime != nil {
        sets = append(sets, "start_time = ?")
        args = append(args, *patch.StartTime)
    }
    if patch.EndTime != nil {
        sets = append(sets, "end_time = ?")
        args = append(args, *patch.EndTime)
    }
    if patch.Status != nil {
        sets = append(sets, "status = ?")
        args = append(args, model.NormalizeStatus(*patch.Status))
    }
    if patch.Purpose != nil {
        sets = append(sets, "purpose = ?")
        args = append(args, *patch.Purpose)
    }
    if patch.Visibility != nil {
        sets = append(sets, "visibility = ?")
        args = append(args, *patch.Visibility)
    }
    return sets, args
}

// ruleColumns flattens a recurrence rule into its nullable columns.
func ruleColumns(rule *model.RecurrenceRule) (pattern, weekdays, weekOfMonth, weekday, endDate interface{}) {
    if rule == nil {
        return nil, nil, nil, nil, nil
    }
    pattern = rule.Pattern
    if rule.HasWeekdaySet() {
        weekdays = encodeWeekdays(rule.Weekdays)
    }
    if rule.WeekOfMonth != 0 {
        weekOfMonth = rule.WeekOfMonth
    }
    if rule.Weekday != nil {
        weekday = int(*rule.Weekday)
    }
    if !rule.EndDate.IsZero() {
        endDate = rule.EndDate.Format(schedule.DateLayout)
    }
    return pattern, weekdays, weekOfMonth, weekday, endDate
}

// encodeWeekdays serializes a weekday set as a comma-separated list of
// integers (0=Sunday), e.g. "1,3,5".
func encodeWeekdays(days []time.Weekday) string {
    parts := make([]string, 0, len(days))
    for _, d := range days {
        parts = append(parts, strconv.Itoa(int(d)))
    }
    return strings.Join(parts, ",")
}

func decodeWeekdays(s string) []time.Weekday {
    if s == "" {
        return nil
    }
    var out []time.Weekday
    for _, part := range strings.Split(s, ",") {
        n, err := strconv.Atoi(strings.TrimSpace(part))
        if err != nil || n < 0 || n > 6 {
            continue
        }
        out = append(out, time.Weekday(n))
    }
    return out
}
