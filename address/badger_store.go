package address

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/caio-sobreiro/bacnetstack/types"
)

// PersistentBinding is the durable, on-disk form of a Table binding.
// Unlike the in-memory Table (the spec-mandated fixed-capacity cache
// that every lookup goes through), a BadgerStore is purely additive: it
// lets bindings for commonly-seen devices survive a process restart so
// the first Who-Is/I-Am round trip can be skipped, grounded on
// marmos91-dittofs's use of dgraph-io/badger/v4 as its local metadata
// key-value store.
type PersistentBinding struct {
	DeviceID     uint32
	MaxAPDU      uint16
	Segmentation types.Segmentation
	MaxSegments  uint8
	Mac          []byte
	Net          uint16
	Adr          []byte
}

// BadgerStore persists address bindings across restarts.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if absent) a Badger database at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open address badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func key(deviceID uint32) []byte {
	return []byte(fmt.Sprintf("device/%d", deviceID))
}

// Put persists a binding for deviceID.
func (s *BadgerStore) Put(b PersistentBinding) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(b.DeviceID), data)
	})
}

// Get retrieves a persisted binding, if any.
func (s *BadgerStore) Get(deviceID uint32) (PersistentBinding, bool, error) {
	var out PersistentBinding
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(deviceID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &out); err != nil {
				return err
			}
			found = true
			return nil
		})
	})
	return out, found, err
}

// LoadInto seeds t with every binding this store holds, restoring state
// after a restart. Callers typically follow this with fresh Who-Is
// traffic to confirm bindings are still valid, so ttlSeconds should be
// short relative to the normal binding TTL.
func (s *BadgerStore) LoadInto(t *Table, ttlSeconds int32) error {
	return s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("device/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var b PersistentBinding
				if err := json.Unmarshal(val, &b); err != nil {
					return err
				}
				var addr Address
				n := copy(addr.Mac[:], b.Mac)
				addr.MacLen = uint8(n)
				addr.Net = b.Net
				n = copy(addr.Adr[:], b.Adr)
				addr.AdrLen = uint8(n)
				t.Add(b.DeviceID, b.MaxAPDU, b.Segmentation, b.MaxSegments, addr, ttlSeconds)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
}
