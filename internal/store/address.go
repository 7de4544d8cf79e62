// Package store implements the layered memory store: L0 core settings, L1
// consolidated shards, L2 working set, and the volume-managed append-only
// archive, unified behind a single put/get/list/delete/migrate_to_L1
// surface with one global write lock.
package store

import (
	"encoding/binary"
	"errors"
	"log"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/kittclouds/recall/internal/errs"
)

// Address locates a memory inside the volume archive.
type Address struct {
	Volume string
	Offset int64
	Length int64
}

// AddressIndex is the badger-backed memory-id -> (volume, offset, length)
// index giving O(1) lookup for any memory ever written.
type AddressIndex struct {
	db *badger.DB
}

// OpenAddressIndex opens (creating if absent) the badger database under dir.
func OpenAddressIndex(dir string) (*AddressIndex, error) {
	opts := badger.DefaultOptions(dir).WithLogger(quietBadgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "open address index", err)
	}
	return &AddressIndex{db: db}, nil
}

// Put records memoryID's location.
func (a *AddressIndex) Put(memoryID string, addr Address) error {
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(memoryID), encodeAddress(addr))
	})
}

// Get resolves memoryID to its Address.
func (a *AddressIndex) Get(memoryID string) (Address, error) {
	var addr Address
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(memoryID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			addr = decodeAddress(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Address{}, errs.ErrNotFound
	}
	if err != nil {
		return Address{}, errs.Wrap(errs.Storage, "read address index", err)
	}
	return addr, nil
}

// Delete removes memoryID's address entry.
func (a *AddressIndex) Delete(memoryID string) error {
	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(memoryID))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Close closes the underlying badger database.
func (a *AddressIndex) Close() error { return a.db.Close() }

func encodeAddress(addr Address) []byte {
	volBytes := []byte(addr.Volume)
	buf := make([]byte, 2+len(volBytes)+16)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(volBytes)))
	copy(buf[2:], volBytes)
	binary.BigEndian.PutUint64(buf[2+len(volBytes):], uint64(addr.Offset))
	binary.BigEndian.PutUint64(buf[2+len(volBytes)+8:], uint64(addr.Length))
	return buf
}

func decodeAddress(buf []byte) Address {
	if len(buf) < 2 {
		return Address{}
	}
	volLen := int(binary.BigEndian.Uint16(buf[0:2]))
	if len(buf) < 2+volLen+16 {
		return Address{}
	}
	vol := string(buf[2 : 2+volLen])
	offset := int64(binary.BigEndian.Uint64(buf[2+volLen:]))
	length := int64(binary.BigEndian.Uint64(buf[2+volLen+8:]))
	return Address{Volume: vol, Offset: offset, Length: length}
}

// quietBadgerLogger suppresses badger's debug/info chatter the way the
// corpus's own badger wrapper does, logging only warnings and errors.
type quietBadgerLogger struct{}

func (quietBadgerLogger) Errorf(f string, v ...interface{})   { log.Printf("[badger] ERROR: "+f, v...) }
func (quietBadgerLogger) Warningf(f string, v ...interface{}) { log.Printf("[badger] WARN: "+f, v...) }
func (quietBadgerLogger) Infof(string, ...interface{})        {}
func (quietBadgerLogger) Debugf(string, ...interface{})       {}
