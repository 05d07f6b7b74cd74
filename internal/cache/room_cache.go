// Package cache holds the in-process projection of every live room.
package cache

import (
	"sync"

	"pollroom/internal/domain"
)

// roomEntry pairs a room's latest snapshot with the mutex that
// serializes every mutation touching that room: vote casts, manual
// close and scheduler ticks all lock it before reading the store.
type roomEntry struct {
	mu       sync.Mutex
	snapshot *domain.RoomSnapshot
}

// RoomCache maps roomID to the last known RoomSnapshot. It is owned by
// whoever wires the application together and injected everywhere else;
// there is no package-level instance. Operations on different rooms
// never contend with each other.
type RoomCache struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

// NewRoomCache creates an empty cache.
func NewRoomCache() *RoomCache {
	return &RoomCache{rooms: make(map[string]*roomEntry)}
}

// entry returns the room's entry, creating it when create is set.
func (c *RoomCache) entry(roomID string, create bool) *roomEntry {
	c.mu.RLock()
	e, ok := c.rooms[roomID]
	c.mu.RUnlock()
	if ok || !create {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.rooms[roomID]; ok {
		return e
	}
	e = &roomEntry{}
	c.rooms[roomID] = e
	return e
}

// RoomLock returns the mutex serializing mutations of one room,
// creating the entry if the room is not tracked yet. The caller locks
// it around its whole read-check-write sequence.
func (c *RoomCache) RoomLock(roomID string) *sync.Mutex {
	return &c.entry(roomID, true).mu
}

// Get returns the last known snapshot, or false on a miss.
func (c *RoomCache) Get(roomID string) (*domain.RoomSnapshot, bool) {
	e := c.entry(roomID, false)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.snapshot == nil {
		return nil, false
	}
	return e.snapshot, true
}

// Swap replaces the room's snapshot wholesale. Snapshots are never
// mutated in place, so readers either see the old view or the new one.
func (c *RoomCache) Swap(roomID string, snapshot *domain.RoomSnapshot) {
	e := c.entry(roomID, true)
	e.mu.Lock()
	e.snapshot = snapshot
	e.mu.Unlock()
}

// SwapLocked is Swap for a caller already holding the room's lock from
// RoomLock; the mutex is not reentrant, so Swap would deadlock there.
func (c *RoomCache) SwapLocked(roomID string, snapshot *domain.RoomSnapshot) {
	c.entry(roomID, true).snapshot = snapshot
}

// Evict drops the room from the cache. The poll stays readable from
// the store; it just stops receiving live refreshes. Eviction waits
// for any in-flight mutation holding the room's lock, and only removes
// the entry it locked, so a concurrently re-created entry survives.
func (c *RoomCache) Evict(roomID string) {
	e := c.entry(roomID, false)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms[roomID] == e {
		delete(c.rooms, roomID)
	}
}

// TrackedRooms lists every room currently cached, in no particular
// order. The scheduler sweeps this list each tick.
func (c *RoomCache) TrackedRooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Len reports how many rooms are tracked.
func (c *RoomCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms)
}
