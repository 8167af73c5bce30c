// Package lock provides the per-room serialization point the
// scheduler needs around its check-then-insert sequence.  A Redis
// SET NX lock serializes across processes; when no Redis client is
// available the locker degrades to in-process mutexes, which still
// closes the race within a single instance.
package lock

import (
    "context"
    "fmt"
    "sync"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
)

const (
    keyPrefix    = "reslock:room:"
    lockTTL      = 10 * time.Second
    retryBackoff = 50 * time.Millisecond
)

// RoomLocker serializes scheduling operations per room.  Acquire
// blocks until the lock is held or ctx expires; the returned function
// releases it.
type RoomLocker struct {
    rdb *redis.Client

    mu    sync.Mutex
    local map[uint64]*sync.Mutex
}

// New builds a RoomLocker.  rdb may be nil, selecting the in-process
// fallback.
func New(rdb *redis.Client) *RoomLocker {
    return &RoomLocker{rdb: rdb, local: make(map[uint64]*sync.Mutex)}
}

// Acquire takes the lock for roomID.  With Redis, a random token
// guards the release so one holder can never delete another's lock;
// the TTL bounds how long a crashed holder can block a room.
func (l *RoomLocker) Acquire(ctx context.Context, roomID uint64) (func(), error) {
    if l.rdb == nil {
        return l.acquireLocal(roomID), nil
    }
    key := fmt.Sprintf("%s%d", keyPrefix, roomID)
    token := uuid.NewString()
    for {
        ok, err := l.rdb.SetNX(ctx, key, token, lockTTL).Result()
        if err != nil {
            // Redis went away mid-flight; fall back rather than block bookings.
            return l.acquireLocal(roomID), nil
        }
        if ok {
            release := func() {
                // Delete only if we still own the lock.
                const script = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
                _ = l.rdb.Eval(context.Background(), script, []string{key}, token).Err()
            }
            return release, nil
        }
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(retryBackoff):
        }
    }
}

func (l *RoomLocker) acquireLocal(roomID uint64) func() {
    l.mu.Lock()
    m, ok := l.local[roomID]
    if !ok {
        m = &sync.Mutex{}
        l.local[roomID] = m
    }
    l.mu.Unlock()
    m.Lock()
    return m.Unlock
}
