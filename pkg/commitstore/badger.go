package commitstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/gitgraft/pkg/changeset"
	"github.com/Sumatoshi-tech/gitgraft/pkg/persist"
)

// Badger is a persistent changeset store on BadgerDB.
// Changeset and content values are LZ4-compressed; keys follow the shared layout.
type Badger struct {
	db    *badger.DB
	codec persist.Codec
}

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string
	// InMemory keeps all data in memory; used by tests.
	InMemory bool
}

// OpenBadger opens (or creates) a Badger-backed store.
func OpenBadger(opts BadgerOptions) (*Badger, error) {
	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Badger{db: db, codec: persist.NewCompactJSONCodec()}, nil
}

// Close releases the database.
func (b *Badger) Close() error {
	err := b.db.Close()
	if err != nil {
		return fmt.Errorf("close badger: %w", err)
	}

	return nil
}

// Create implements changeset.Store.
func (b *Badger) Create(_ context.Context, cs *changeset.Changeset) (changeset.ID, error) {
	canonical := cs.Canonical()
	id := canonical.ID()

	data, err := persist.Marshal(b.codec, canonical)
	if err != nil {
		return changeset.ID{}, fmt.Errorf("encode changeset: %w", err)
	}

	err = b.putIfAbsent(changesetKey(id), data, true)
	if err != nil {
		return changeset.ID{}, fmt.Errorf("write changeset %s: %w", id, err)
	}

	return id, nil
}

// Read implements changeset.Store.
func (b *Badger) Read(_ context.Context, id changeset.ID) (*changeset.Changeset, error) {
	data, err := b.get(changesetKey(id), true)
	if err != nil {
		return nil, fmt.Errorf("changeset %s: %w", id, err)
	}

	var cs changeset.Changeset

	decodeErr := persist.Unmarshal(b.codec, data, &cs)
	if decodeErr != nil {
		return nil, fmt.Errorf("decode changeset %s: %w", id, decodeErr)
	}

	return &cs, nil
}

// WriteContent implements changeset.Store.
func (b *Badger) WriteContent(_ context.Context, data []byte) (changeset.ID, error) {
	id := changeset.ContentID(data)

	err := b.putIfAbsent(contentKey(id), data, true)
	if err != nil {
		return changeset.ID{}, fmt.Errorf("write content %s: %w", id, err)
	}

	return id, nil
}

// ReadContent implements changeset.Store.
func (b *Badger) ReadContent(_ context.Context, id changeset.ID) ([]byte, error) {
	data, err := b.get(contentKey(id), true)
	if err != nil {
		return nil, fmt.Errorf("content %s: %w", id, err)
	}

	return data, nil
}

// SetMapping implements changeset.Store.
func (b *Badger) SetMapping(_ context.Context, foreignID string, id changeset.ID) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(mappingKey(foreignID)), id[:])
	})
	if err != nil {
		return fmt.Errorf("write mapping for %s: %w", foreignID, err)
	}

	return nil
}

// Mapping implements changeset.Store.
func (b *Badger) Mapping(_ context.Context, foreignID string) (changeset.ID, error) {
	data, err := b.get(mappingKey(foreignID), false)
	if err != nil {
		return changeset.ID{}, fmt.Errorf("mapping for %s: %w", foreignID, err)
	}

	var id changeset.ID

	if len(data) != len(id) {
		return changeset.ID{}, fmt.Errorf("mapping for %s: %w", foreignID, changeset.ErrInvalidID)
	}

	copy(id[:], data)

	return id, nil
}

// GetDerived returns a derived-data payload or changeset.ErrNotFound.
func (b *Badger) GetDerived(_ context.Context, kind string, id changeset.ID) ([]byte, error) {
	data, err := b.get(derivedKey(kind, id), true)
	if err != nil {
		return nil, fmt.Errorf("derived %s for %s: %w", kind, id, err)
	}

	return data, nil
}

// PutDerived stores a derived-data payload.
func (b *Badger) PutDerived(_ context.Context, kind string, id changeset.ID, data []byte) error {
	compressed, err := compress(data)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(derivedKey(kind, id)), compressed)
	})
	if err != nil {
		return fmt.Errorf("write derived %s for %s: %w", kind, id, err)
	}

	return nil
}

// putIfAbsent skips the write when the key exists; content-addressed values never change.
func (b *Badger) putIfAbsent(key string, value []byte, compressed bool) error {
	if compressed {
		packed, err := compress(value)
		if err != nil {
			return err
		}

		value = packed
	}

	return b.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}

		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		return txn.Set([]byte(key), value)
	})
}

func (b *Badger) get(key string, compressed bool) ([]byte, error) {
	var value []byte

	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)

		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, changeset.ErrNotFound
		}

		return nil, err
	}

	if !compressed {
		return value, nil
	}

	return decompress(value)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer

	writer := lz4.NewWriter(&buf)

	_, err := writer.Write(data)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("lz4 compress: %w", closeErr)
	}

	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}

	return out, nil
}
