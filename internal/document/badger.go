package document

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/badgerdb"
	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/codec"
	apperrors "github.com/Adithya-Monish-Kumar-K/kokuto/pkg/errors"
)

// Key layout:
//
//	doc\x00<tenant>\x00<id>    -> CBOR record
//	idem\x00<tenant>\x00<key>  -> document id
//
// Document ids are UUIDv7 strings, so a tenant's documents sort by creation
// time.
const (
	docPrefix  = "doc\x00"
	idemPrefix = "idem\x00"
)

type record struct {
	Text           []byte   `cbor:"1,keyasint"`
	Sections       []string `cbor:"2,keyasint"`
	Phrases        []string `cbor:"3,keyasint,omitempty"`
	ExtraData      []byte   `cbor:"4,keyasint,omitempty"`
	ContentHash    string   `cbor:"5,keyasint"`
	IdempotencyKey string   `cbor:"6,keyasint,omitempty"`
	CreatedAt      int64    `cbor:"7,keyasint"`
}

// BadgerStore keeps documents in the embedded store. Text is stored
// zstd-compressed.
type BadgerStore struct {
	db *badgerdb.DB
}

func NewBadgerStore(db *badgerdb.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func tenantPrefix(tenantID string) []byte {
	return []byte(docPrefix + tenantID + "\x00")
}

func docKey(tenantID, id string) []byte {
	return []byte(docPrefix + tenantID + "\x00" + id)
}

func idemKey(tenantID, key string) []byte {
	return []byte(idemPrefix + tenantID + "\x00" + key)
}

func encode(doc *Document) ([]byte, error) {
	return codec.Marshal(record{
		Text:           codec.Compress([]byte(doc.Text)),
		Sections:       doc.Sections,
		Phrases:        doc.Phrases,
		ExtraData:      doc.ExtraData,
		ContentHash:    doc.ContentHash,
		IdempotencyKey: doc.IdempotencyKey,
		CreatedAt:      doc.CreatedAt.UnixNano(),
	})
}

func decode(tenantID, id string, data []byte) (*Document, error) {
	var rec record
	if err := codec.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", id, err)
	}
	text, err := codec.Decompress(rec.Text)
	if err != nil {
		return nil, fmt.Errorf("decompressing document %s: %w", id, err)
	}
	doc := &Document{
		ID:             id,
		TenantID:       tenantID,
		Text:           string(text),
		Sections:       rec.Sections,
		Phrases:        rec.Phrases,
		ContentHash:    rec.ContentHash,
		IdempotencyKey: rec.IdempotencyKey,
		CreatedAt:      time.Unix(0, rec.CreatedAt).UTC(),
	}
	if doc.Sections == nil {
		doc.Sections = []string{}
	}
	if len(rec.ExtraData) > 0 {
		doc.ExtraData = rec.ExtraData
	}
	return doc, nil
}

func (s *BadgerStore) Insert(_ context.Context, doc *Document) error {
	value, err := encode(doc)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if doc.IdempotencyKey != "" {
			ik := idemKey(doc.TenantID, doc.IdempotencyKey)
			_, err := txn.Get(ik)
			if err == nil {
				return apperrors.New(apperrors.ErrConflict, http.StatusConflict, "idempotency key already used by another document")
			}
			if !badgerdb.IsNotFound(err) {
				return err
			}
			if err := txn.Set(ik, []byte(doc.ID)); err != nil {
				return err
			}
		}
		return txn.Set(docKey(doc.TenantID, doc.ID), value)
	})
	if errors.Is(err, apperrors.ErrConflict) {
		return err
	}
	return apperrors.Storage("inserting document", err)
}

func (s *BadgerStore) get(txn *badger.Txn, tenantID, id string) (*Document, error) {
	item, err := txn.Get(docKey(tenantID, id))
	if badgerdb.IsNotFound(err) {
		return nil, apperrors.ErrDocumentNotFound
	}
	if err != nil {
		return nil, apperrors.Storage("loading document", err)
	}
	var doc *Document
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = decode(tenantID, id, val)
		return err
	})
	return doc, err
}

func (s *BadgerStore) Get(_ context.Context, tenantID, id string) (*Document, error) {
	var doc *Document
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = s.get(txn, tenantID, id)
		return err
	})
	return doc, err
}

func (s *BadgerStore) FindByIdempotencyKey(_ context.Context, tenantID, key string) (*Document, error) {
	var doc *Document
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idemKey(tenantID, key))
		if badgerdb.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return apperrors.Storage("querying by idempotency key", err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return apperrors.Storage("querying by idempotency key", err)
		}
		doc, err = s.get(txn, tenantID, string(id))
		return err
	})
	return doc, err
}

func (s *BadgerStore) List(ctx context.Context, tenantID string, offset, limit int) ([]*Document, error) {
	prefix := tenantPrefix(tenantID)
	docs := make([]*Document, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		for it.Seek(append(append([]byte(nil), prefix...), 0xFF)); it.ValidForPrefix(prefix) && len(docs) < limit; it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			if err := item.Value(func(val []byte) error {
				doc, err := decode(tenantID, id, val)
				if err != nil {
					return err
				}
				docs = append(docs, doc)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Storage("listing documents", err)
	}
	return docs, nil
}

func (s *BadgerStore) Delete(_ context.Context, tenantID, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		doc, err := s.get(txn, tenantID, id)
		if err != nil {
			return err
		}
		if doc.IdempotencyKey != "" {
			if err := txn.Delete(idemKey(tenantID, doc.IdempotencyKey)); err != nil {
				return apperrors.Storage("deleting idempotency key", err)
			}
		}
		if err := txn.Delete(docKey(tenantID, id)); err != nil {
			return apperrors.Storage("deleting document", err)
		}
		return nil
	})
}

// Scan iterates the tenant's documents in one read transaction, giving fn a
// consistent snapshot of the corpus.
func (s *BadgerStore) Scan(ctx context.Context, tenantID string, fn func(*Document) error) error {
	prefix := tenantPrefix(tenantID)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			var doc *Document
			if err := item.Value(func(val []byte) error {
				var err error
				doc, err = decode(tenantID, id, val)
				return err
			}); err != nil {
				return apperrors.Storage("scanning documents", err)
			}
			if err := fn(doc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) Ping(context.Context) error {
	return s.db.Ping()
}

// Close is a no-op; the shared badgerdb.DB is closed by its owner.
func (s *BadgerStore) Close() error {
	return nil
}

var _ Store = (*BadgerStore)(nil)
