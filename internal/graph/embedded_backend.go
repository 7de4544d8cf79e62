package graph

import (
	"encoding/json"
	"errors"
	"log"
	"strings"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/kittclouds/recall/internal/errs"
	"github.com/kittclouds/recall/internal/types"
)

// Key layout inside the badger database, one unit-separator-joined string
// per segment so subject/predicate/object text can't corrupt a key:
//
//	e:{entityKey}                         -> JSON Entity
//	rel:{relationID}                      -> JSON Relation
//	fwd:{entityKey}:{relationID}           -> empty (forward adjacency index)
//	rev:{entityKey}:{relationID}           -> empty (reverse adjacency index)
//	triple:{triple}                       -> relationID of the ACTIVE fact
//	subjpred:{subjectKey}:{predicate}      -> relationID of the ACTIVE fact
const keySep = "\x1f"

// EmbeddedBackend is the higher-throughput graph backend: entities and
// relations persisted directly in badger, with forward/reverse adjacency
// indexes for RelationsByEntity, a triple index so FindActiveByTriple is
// an O(1) point lookup rather than a scan, and a subject+predicate index
// so the contradiction path can find an ACTIVE fact to compare against
// without needing the incoming fact's object to already match.
type EmbeddedBackend struct {
	db *badger.DB
}

// NewEmbeddedBackend opens (creating if absent) the badger database under
// dir as a knowledge graph store.
func NewEmbeddedBackend(dir string) (*EmbeddedBackend, error) {
	opts := badger.DefaultOptions(dir).WithLogger(quietGraphLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "open embedded graph backend", err)
	}
	return &EmbeddedBackend{db: db}, nil
}

func entityDBKey(key string) []byte  { return []byte("e" + keySep + key) }
func relationDBKey(id string) []byte { return []byte("rel" + keySep + id) }
func fwdDBKey(entityKey, relID string) []byte {
	return []byte("fwd" + keySep + entityKey + keySep + relID)
}
func fwdPrefix(entityKey string) []byte { return []byte("fwd" + keySep + entityKey + keySep) }
func revDBKey(entityKey, relID string) []byte {
	return []byte("rev" + keySep + entityKey + keySep + relID)
}
func revPrefix(entityKey string) []byte { return []byte("rev" + keySep + entityKey + keySep) }
func tripleDBKey(triple string) []byte  { return []byte("triple" + keySep + triple) }
func subjPredDBKey(subjectKey, predicate string) []byte {
	return []byte("subjpred" + keySep + subjectKey + keySep + predicate)
}

func (b *EmbeddedBackend) UpsertEntity(entity types.Entity) error {
	data, err := json.Marshal(entity)
	if err != nil {
		return errs.Wrap(errs.Storage, "marshal entity", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entityDBKey(entity.Key()), data)
	})
}

func (b *EmbeddedBackend) GetEntity(key string) (types.Entity, bool, error) {
	var entity types.Entity
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entityDBKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error { return json.Unmarshal(val, &entity) })
	})
	if err != nil {
		return types.Entity{}, false, errs.Wrap(errs.Storage, "read entity", err)
	}
	return entity, found, nil
}

func (b *EmbeddedBackend) DeleteEntity(key string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entityDBKey(key))
	})
}

func (b *EmbeddedBackend) ListEntities(prefix string) ([]types.Entity, error) {
	var out []types.Entity
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		scanPrefix := []byte("e" + keySep + prefix)
		for it.Seek(scanPrefix); it.ValidForPrefix([]byte("e" + keySep)); it.Next() {
			if !strings.HasPrefix(string(it.Item().Key()), string(scanPrefix)) {
				continue
			}
			var e types.Entity
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "list entities", err)
	}
	return out, nil
}

func (b *EmbeddedBackend) UpsertRelation(rel types.Relation) error {
	data, err := json.Marshal(rel)
	if err != nil {
		return errs.Wrap(errs.Storage, "marshal relation", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(relationDBKey(rel.ID), data); err != nil {
			return err
		}
		if err := txn.Set(fwdDBKey(rel.Subject.Key(), rel.ID), nil); err != nil {
			return err
		}
		if objKey := rel.Object.Key(); objKey != ":" {
			if err := txn.Set(revDBKey(objKey, rel.ID), nil); err != nil {
				return err
			}
		}
		spKey := subjPredDBKey(rel.Subject.Key(), rel.Predicate)
		if rel.Status == types.FactActive {
			if err := txn.Set(tripleDBKey(rel.Triple()), []byte(rel.ID)); err != nil {
				return err
			}
			return txn.Set(spKey, []byte(rel.ID))
		}
		// A superseded/rejected fact must not keep claiming the triple or
		// subject+predicate slot for an ACTIVE lookup.
		if err := txn.Delete(tripleDBKey(rel.Triple())); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if item, err := txn.Get(spKey); err == nil {
			var heldID string
			if verr := item.Value(func(val []byte) error { heldID = string(val); return nil }); verr != nil {
				return verr
			}
			if heldID == rel.ID {
				if err := txn.Delete(spKey); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
					return err
				}
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

// FindActiveBySubjectPredicate returns an ACTIVE relation sharing subject
// and predicate with the caller's, regardless of object, so the
// contradiction judge can compare the two objects itself.
func (b *EmbeddedBackend) FindActiveBySubjectPredicate(subjectKey, predicate string) (types.Relation, bool, error) {
	var rel types.Relation
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(subjPredDBKey(subjectKey, predicate))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var relID string
		if err := item.Value(func(val []byte) error { relID = string(val); return nil }); err != nil {
			return err
		}
		got, ok, err := b.getRelation(txn, relID)
		if err != nil {
			return err
		}
		if ok && got.Status == types.FactActive {
			rel, found = got, true
		}
		return nil
	})
	if err != nil {
		return types.Relation{}, false, errs.Wrap(errs.Storage, "find active subject+predicate", err)
	}
	return rel, found, nil
}

func (b *EmbeddedBackend) getRelation(txn *badger.Txn, id string) (types.Relation, bool, error) {
	var rel types.Relation
	item, err := txn.Get(relationDBKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.Relation{}, false, nil
	}
	if err != nil {
		return types.Relation{}, false, err
	}
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &rel) }); err != nil {
		return types.Relation{}, false, err
	}
	return rel, true, nil
}

func (b *EmbeddedBackend) FindActiveByTriple(triple string) (types.Relation, bool, error) {
	var rel types.Relation
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(tripleDBKey(triple))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var relID string
		if err := item.Value(func(val []byte) error { relID = string(val); return nil }); err != nil {
			return err
		}
		got, ok, err := b.getRelation(txn, relID)
		if err != nil {
			return err
		}
		if ok && got.Status == types.FactActive {
			rel, found = got, true
		}
		return nil
	})
	if err != nil {
		return types.Relation{}, false, errs.Wrap(errs.Storage, "find active triple", err)
	}
	return rel, found, nil
}

func (b *EmbeddedBackend) RelationsByEntity(key string) ([]types.Relation, error) {
	ids := make(map[string]struct{})
	err := b.db.View(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{fwdPrefix(key), revPrefix(key)} {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			func() {
				defer it.Close()
				for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
					k := string(it.Item().Key())
					parts := strings.Split(k, keySep)
					ids[parts[len(parts)-1]] = struct{}{}
				}
			}()
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "list adjacency", err)
	}

	var out []types.Relation
	err = b.db.View(func(txn *badger.Txn) error {
		for id := range ids {
			rel, ok, err := b.getRelation(txn, id)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, rel)
			}
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "read relations by entity", err)
	}
	return out, nil
}

func (b *EmbeddedBackend) AllRelations() ([]types.Relation, error) {
	var out []types.Relation
	prefix := []byte("rel" + keySep)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rel types.Relation
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &rel) }); err != nil {
				return err
			}
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "scan all relations", err)
	}
	return out, nil
}

func (b *EmbeddedBackend) Close() error { return b.db.Close() }

// quietGraphLogger mirrors the store package's badger logger: warnings and
// errors only, debug/info chatter suppressed.
type quietGraphLogger struct{}

func (quietGraphLogger) Errorf(f string, v ...interface{})   { log.Printf("[badger] ERROR: "+f, v...) }
func (quietGraphLogger) Warningf(f string, v ...interface{}) { log.Printf("[badger] WARN: "+f, v...) }
func (quietGraphLogger) Infof(string, ...interface{})        {}
func (quietGraphLogger) Debugf(string, ...interface{})       {}
