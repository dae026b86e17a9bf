package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/meshbook/pkg/book"
)

func trade(symbol string, qty int64) book.Trade {
	return book.Trade{Symbol: symbol, Quantity: qty, Price: 10, SellOrderID: 1, BuyOrderID: 1, Maker: "m", Taker: "t"}
}

func TestPebbleJournal_RecentNewestFirst(t *testing.T) {
	j, err := OpenPebbleJournal(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(trade("BTC", 1)))
	require.NoError(t, j.Append(trade("ETH", 2)))
	require.NoError(t, j.Append(trade("BTC", 3)))
	require.NoError(t, j.Append(trade("BTC", 4)))

	got, err := j.Recent("BTC", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.EqualValues(t, 4, got[0].Trade.Quantity)
	assert.EqualValues(t, 3, got[1].Trade.Quantity)
	assert.Greater(t, got[0].Seq, got[1].Seq)

	all, err := j.Recent("ETH", 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, trade("ETH", 2), all[0].Trade)
}

func TestPebbleJournal_RecentDoesNotMatchLongerSymbols(t *testing.T) {
	j, err := OpenPebbleJournal(filepath.Join(t.TempDir(), "journal"))
	require.NoError(t, err)
	defer j.Close()

	require.NoError(t, j.Append(trade("A", 1)))
	require.NoError(t, j.Append(trade("A:B", 2)))
	require.NoError(t, j.Append(trade("AB", 3)))

	tests := []struct {
		symbol string
		want   int64
	}{
		{"A", 1},
		{"A:B", 2},
		{"AB", 3},
	}
	for _, tt := range tests {
		got, err := j.Recent(tt.symbol, 0)
		require.NoError(t, err)
		require.Len(t, got, 1, "symbol %q", tt.symbol)
		assert.Equal(t, tt.symbol, got[0].Trade.Symbol)
		assert.EqualValues(t, tt.want, got[0].Trade.Quantity)
	}
}

func TestKeyUpperBound(t *testing.T) {
	assert.Equal(t, []byte("ab"), keyUpperBound([]byte("aa")))
	assert.Equal(t, []byte("b"), keyUpperBound([]byte("a\xff\xff")))
	assert.Nil(t, keyUpperBound([]byte("\xff")))
}

func TestPebbleJournal_SequenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")

	j, err := OpenPebbleJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Append(trade("BTC", 1)))
	require.NoError(t, j.Close())

	j, err = OpenPebbleJournal(path)
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, j.Append(trade("BTC", 2)))

	got, err := j.Recent("BTC", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.EqualValues(t, 2, got[0].Seq)
	assert.EqualValues(t, 1, got[1].Seq)
}

func TestNopJournal(t *testing.T) {
	var j Journal = NopJournal{}
	assert.NoError(t, j.Append(trade("BTC", 1)))
	got, err := j.Recent("BTC", 10)
	assert.NoError(t, err)
	assert.Empty(t, got)
}
