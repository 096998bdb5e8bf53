package dag

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"slices"

	"assetweaver/internal/core"
)

const (
	flagAggregate byte = 1 << iota
	flagIsolated
	flagStream
)

type fieldHasher struct{ h hash.Hash }

// put writes a big-endian length prefix followed by b.
func (f fieldHasher) put(b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	f.h.Write(n[:])
	f.h.Write(b)
}

func (f fieldHasher) putString(s string) { f.put([]byte(s)) }

// computeTaskDefHash identifies a task by what it declares: its input
// globs (as a set), base, output dir, processor kind and flags. The
// processor implementation itself does not participate.
func computeTaskDefHash(t core.Task) TaskDefHash {
	f := fieldHasher{h: sha256.New()}

	inputs := slices.Clone(t.Inputs)
	slices.Sort(inputs)
	var count [8]byte
	binary.BigEndian.PutUint64(count[:], uint64(len(inputs)))
	f.put(count[:])
	for _, in := range inputs {
		f.putString(in)
	}

	f.putString(t.Base)
	f.putString(t.Output)
	f.putString(t.Kind())

	var flags byte
	if t.Aggregate {
		flags |= flagAggregate
	}
	if t.Isolated {
		flags |= flagIsolated
	}
	if t.Stream {
		flags |= flagStream
	}
	f.put([]byte{flags})

	return TaskDefHash(hex.EncodeToString(f.h.Sum(nil)))
}
