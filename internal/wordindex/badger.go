package wordindex

import (
	"context"
	"encoding/binary"
	"math"

	"github.com/dgraph-io/badger/v4"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/badgerdb"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/codec"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
)

// Badger key layout:
//
//	wh\x00<tenant>\x00<word>                       CBOR counter record
//	wr\x00<tenant>\x00g\x00<inv count><word>        tenant-wide rank entry
//	wr\x00<tenant>\x00s\x00<section>\x00<inv count><word>
//
// <inv count> is MaxUint64-count in big endian, so a forward prefix scan
// yields words by count descending. The record and its rank entries change
// in one transaction.
type entryRecord struct {
	Global   int64            `cbor:"1,keyasint"`
	Sections map[string]int64 `cbor:"2,keyasint,omitempty"`
}

type BadgerStore struct {
	db *badgerdb.DB
}

func NewBadgerStore(db *badgerdb.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func entryKey(tenantID, word string) []byte {
	return []byte("wh\x00" + tenantID + "\x00" + word)
}

func rankPrefix(tenantID, section string) []byte {
	if section == "" {
		return []byte("wr\x00" + tenantID + "\x00g\x00")
	}
	return []byte("wr\x00" + tenantID + "\x00s\x00" + section + "\x00")
}

func rankKey(prefix []byte, word string, count int64) []byte {
	key := make([]byte, 0, len(prefix)+8+len(word))
	key = append(key, prefix...)
	key = binary.BigEndian.AppendUint64(key, math.MaxUint64-uint64(count))
	return append(key, word...)
}

func (s *BadgerStore) Name() string { return "badger" }

func (s *BadgerStore) Incr(_ context.Context, tenantID, word string, sections []string, count int64) error {
	key := entryKey(tenantID, word)
	err := s.db.Update(func(txn *badger.Txn) error {
		rec, existed, err := loadEntry(txn, key)
		if err != nil {
			return err
		}
		if err := moveRank(txn, rankPrefix(tenantID, ""), word, rec.Global, count, existed); err != nil {
			return err
		}
		rec.Global += count

		if rec.Sections == nil {
			rec.Sections = make(map[string]int64, len(sections))
		}
		for _, section := range sections {
			old, seen := rec.Sections[section]
			if err := moveRank(txn, rankPrefix(tenantID, section), word, old, count, seen); err != nil {
				return err
			}
			rec.Sections[section] = old + count
		}

		value, err := codec.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(key, value)
	})
	return apperrors.Storage("badger incr", err)
}

// moveRank replaces the rank entry of word at old with one at old+delta.
func moveRank(txn *badger.Txn, prefix []byte, word string, old, delta int64, existed bool) error {
	if existed {
		if delta == 0 {
			return nil
		}
		if err := txn.Delete(rankKey(prefix, word, old)); err != nil {
			return err
		}
	}
	return txn.Set(rankKey(prefix, word, old+delta), nil)
}

func loadEntry(txn *badger.Txn, key []byte) (entryRecord, bool, error) {
	var rec entryRecord
	item, err := txn.Get(key)
	if badgerdb.IsNotFound(err) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, err
	}
	err = item.Value(func(val []byte) error {
		return codec.Unmarshal(val, &rec)
	})
	return rec, err == nil, err
}

func (s *BadgerStore) Top(ctx context.Context, tenantID, section string, offset, limit int) ([]WordCount, error) {
	prefix := rankPrefix(tenantID, section)
	out := make([]WordCount, 0, min(limit, 1024))
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		for it.Rewind(); it.Valid() && len(out) < limit; it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rest := it.Item().Key()[len(prefix):]
			if len(rest) < 8 {
				continue
			}
			out = append(out, WordCount{
				Word:  string(rest[8:]),
				Count: int64(math.MaxUint64 - binary.BigEndian.Uint64(rest[:8])),
			})
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Storage("badger top", err)
	}
	return out, nil
}

func (s *BadgerStore) Entry(_ context.Context, tenantID, word string) (Entry, error) {
	var entry Entry
	err := s.db.View(func(txn *badger.Txn) error {
		rec, _, err := loadEntry(txn, entryKey(tenantID, word))
		if err != nil {
			return err
		}
		entry = Entry{Global: rec.Global, Sections: rec.Sections}
		return nil
	})
	if err != nil {
		return Entry{}, apperrors.Storage("badger entry", err)
	}
	if entry.Sections == nil {
		entry.Sections = make(map[string]int64)
	}
	return entry, nil
}

func (s *BadgerStore) Ping(context.Context) error {
	return s.db.Ping()
}

var _ Store = (*BadgerStore)(nil)
