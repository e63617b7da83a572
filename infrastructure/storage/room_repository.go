package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"estimo/contract"
	"estimo/domain"
	"estimo/errors"

	"github.com/dgraph-io/badger/v4"
)

const roomKeyPrefix = "room:"

// RoomRepository is the durable owner of rooms.
// Every Transact runs in its own Badger read-write transaction: the read of
// the room key is tracked by Badger's oracle, so a commit racing with another
// commit on the same key fails with badger.ErrConflict, even when the key was
// absent at read time.
type RoomRepository struct {
	db        *badger.DB
	log       *slog.Logger
	publisher contract.Publisher
	locks     *commitLocks
}

// NewRoomRepository builds the store. publisher may be nil for read-only use.
func NewRoomRepository(db *badger.DB, log *slog.Logger, publisher contract.Publisher) *RoomRepository {
	return &RoomRepository{
		db:        db,
		log:       log,
		publisher: publisher,
		locks:     newCommitLocks(),
	}
}

func roomKey(id domain.RoomID) []byte {
	return []byte(roomKeyPrefix + string(id))
}

// Get returns the latest committed snapshot, or errors.ErrNotFound.
func (r *RoomRepository) Get(ctx context.Context, id domain.RoomID) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	var room *domain.Room
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		room, err = readRoom(txn, roomKey(id))
		return err
	})
	if err != nil {
		return domain.Room{}, err
	}
	if room == nil {
		return domain.Room{}, fmt.Errorf("%w: %s", errors.ErrNotFound, id)
	}
	return *room, nil
}

// Transact applies mutator to the current snapshot and commits the result.
// The id and the revision of the committed room are stamped here, never by
// the mutator. On success the snapshot is handed to the publisher while the
// room's commit lock is still held, so publication order is commit order.
func (r *RoomRepository) Transact(ctx context.Context, id domain.RoomID, mutator domain.Mutator) (domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return domain.Room{}, err
	}
	key := roomKey(id)
	txn := r.db.NewTransaction(true)
	defer txn.Discard()

	snapshot, err := readRoom(txn, key)
	if err != nil {
		return domain.Room{}, err
	}
	next, err := mutator(snapshot)
	if err != nil {
		return domain.Room{}, err
	}
	if next == nil {
		return domain.Room{}, fmt.Errorf("mutator returned no room for %s", id)
	}

	committed := *next
	committed.ID = id
	committed.Revision = 1
	if snapshot != nil {
		committed.Revision = snapshot.Revision + 1
	}
	data, err := encodeRoom(committed)
	if err != nil {
		return domain.Room{}, err
	}
	if err = txn.Set(key, data); err != nil {
		return domain.Room{}, fmt.Errorf("failed to stage room %s: %w", id, err)
	}

	unlock := r.locks.lock(id)
	defer unlock()
	if err = txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return domain.Room{}, fmt.Errorf("%w: room %s", errors.ErrConflict, id)
		}
		return domain.Room{}, fmt.Errorf("failed to commit room %s: %w", id, err)
	}
	r.log.Debug("Room committed", "room_id", id, "revision", committed.Revision)

	if r.publisher != nil {
		if err = r.publisher.Publish(committed); err != nil {
			r.log.Warn("Committed room not published", "room_id", id, "error", err)
		}
	}
	return committed, nil
}

// List scans every stored room. Used by the debug inspector.
func (r *RoomRepository) List(ctx context.Context) ([]domain.Room, error) {
	var rooms []domain.Room
	prefix := []byte(roomKeyPrefix)

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := it.Item().Value(func(v []byte) error {
				room, err := decodeRoom(v)
				if err != nil {
					return err
				}
				rooms = append(rooms, room)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error during room scan: %w", err)
	}
	return rooms, nil
}

// readRoom returns nil when the key does not exist.
func readRoom(txn *badger.Txn, key []byte) (*domain.Room, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	var room domain.Room
	err = item.Value(func(v []byte) error {
		room, err = decodeRoom(v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// commitLocks hands out one mutex per room id. Entries are dropped once no
// goroutine holds or waits for them.
type commitLocks struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func newCommitLocks() *commitLocks {
	return &commitLocks{rooms: make(map[domain.RoomID]*roomLock)}
}

func (c *commitLocks) lock(id domain.RoomID) (unlock func()) {
	c.mu.Lock()
	l, ok := c.rooms[id]
	if !ok {
		l = &roomLock{}
		c.rooms[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.rooms, id)
		}
		c.mu.Unlock()
	}
}
