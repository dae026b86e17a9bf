package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/meshbook/pkg/book"
)

// Entry is one journaled trade.
type Entry struct {
	Seq        uint64     `json:"seq"`
	RecordedAt time.Time  `json:"recordedAt"`
	Trade      book.Trade `json:"trade"`
}

// Journal is an append-only audit log of the trades a node executed. It is
// write-mostly and is never read back into the order book.
type Journal interface {
	Append(t book.Trade) error
	Recent(symbol string, limit int) ([]Entry, error)
	Close() error
}

type NopJournal struct{}

func (NopJournal) Append(book.Trade) error             { return nil }
func (NopJournal) Recent(string, int) ([]Entry, error) { return nil, nil }
func (NopJournal) Close() error                        { return nil }

type PebbleJournal struct {
	db *pebble.DB

	mu  sync.Mutex
	seq uint64
	now func() time.Time
}

func OpenPebbleJournal(path string) (*PebbleJournal, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	j := &PebbleJournal{db: db, now: time.Now}
	val, closer, err := db.Get([]byte(keySeq))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		_ = db.Close()
		return nil, fmt.Errorf("read journal seq: %w", err)
	default:
		j.seq = decodeSeq(val)
		closer.Close()
	}
	return j, nil
}

func (j *PebbleJournal) Close() error { return j.db.Close() }

func (j *PebbleJournal) Append(t book.Trade) error {
	if len(t.Symbol) > maxSymbolLen {
		return fmt.Errorf("journal: symbol too long (%d bytes)", len(t.Symbol))
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.seq + 1
	data, err := json.Marshal(Entry{Seq: seq, RecordedAt: j.now().UTC(), Trade: t})
	if err != nil {
		return fmt.Errorf("failed to marshal trade: %w", err)
	}

	batch := j.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(tradeKey(t.Symbol, seq), data, nil); err != nil {
		return err
	}
	if err := batch.Set([]byte(keySeq), encodeSeq(seq), nil); err != nil {
		return err
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	j.seq = seq
	return nil
}

// Recent returns up to limit entries for symbol, newest first.
func (j *PebbleJournal) Recent(symbol string, limit int) ([]Entry, error) {
	if len(symbol) > maxSymbolLen {
		return nil, nil
	}
	prefix := tradePrefix(symbol)
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []Entry
	for iter.Last(); iter.Valid() && (limit <= 0 || len(out) < limit); iter.Prev() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			continue // Skip invalid entries
		}
		out = append(out, e)
	}
	return out, iter.Error()
}

var _ Journal = (*PebbleJournal)(nil)
var _ Journal = NopJournal{}
