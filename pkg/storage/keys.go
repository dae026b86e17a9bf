package storage

import (
	"encoding/binary"
	"math"
)

// Key schema:
//
//	trade:<2-byte symbol length><symbol><8-byte big-endian seq> -> journal entry
//	meta:seq                                                   -> last sequence number written
//
// The length prefix keeps one symbol's range from covering another symbol
// that merely starts with it.
const (
	prefixTrade = "trade:"
	keySeq      = "meta:seq"

	maxSymbolLen = math.MaxUint16
)

// tradeKey sorts entries of one symbol by sequence number.
func tradeKey(symbol string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(tradePrefix(symbol), seq)
}

func tradePrefix(symbol string) []byte {
	k := make([]byte, 0, len(prefixTrade)+2+len(symbol)+8)
	k = append(k, prefixTrade...)
	k = binary.BigEndian.AppendUint16(k, uint16(len(symbol)))
	return append(k, symbol...)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan, or nil
// when the prefix has no upper bound.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}

func encodeSeq(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return b[:]
}

func decodeSeq(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
