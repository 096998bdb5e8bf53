package core

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// TreeHash is the deterministic identity of an output tree's content.
//
// Two builds of an unchanged source tree must produce the same TreeHash.
type TreeHash string

// String returns the string representation of the TreeHash.
func (t TreeHash) String() string {
	return string(t)
}

// ComputeTreeHash hashes the paths and contents of a harvested tree.
//
// Every component is length-prefixed to prevent ambiguity; artifacts are
// already sorted by the Harvester.
func ComputeTreeHash(set *ArtifactSet) TreeHash {
	h := sha256.New()

	n := 0
	if set != nil {
		n = len(set.Artifacts)
	}
	writeField(h, uint64Bytes(uint64(n)))
	if set != nil {
		for _, a := range set.Artifacts {
			writeField(h, []byte(a.Path))
			writeField(h, a.Content)
		}
	}

	return TreeHash(hex.EncodeToString(h.Sum(nil)))
}

// HashTree harvests root and hashes it.
func HashTree(root string) (TreeHash, error) {
	set, err := NewHarvester(root).HarvestAll()
	if err != nil {
		return "", err
	}
	return ComputeTreeHash(set), nil
}

func writeField(h hash.Hash, data []byte) {
	h.Write(uint64Bytes(uint64(len(data))))
	h.Write(data)
}

// uint64Bytes encodes v big-endian.
func uint64Bytes(v uint64) []byte {
	return []byte{
		byte(v >> 56),
		byte(v >> 48),
		byte(v >> 40),
		byte(v >> 32),
		byte(v >> 24),
		byte(v >> 16),
		byte(v >> 8),
		byte(v),
	}
}
