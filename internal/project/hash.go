package project

import (
	"crypto/sha256"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Digest - фиксированный 256 битный хеш
type Digest [32]byte

// Combine строит составной хеш: H( head || part1 || part2 ... ).
// Порядок частей должен быть детерминированным.
func Combine(head Digest, parts ...Digest) Digest {
	h := sha256.New()
	_, _ = h.Write(head[:])
	for _, d := range parts {
		_, _ = h.Write(d[:])
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// Fingerprint hashes the materialized descriptor. Two descriptors with equal
// fingerprints configure identical analysis contexts.
func Fingerprint(desc *Descriptor) (Digest, error) {
	if desc == nil {
		return Digest{}, nil
	}
	head, err := msgpack.Marshal(struct {
		Name string `msgpack:"name"`
		Root string `msgpack:"root"`
	}{desc.Name, desc.RootPath})
	if err != nil {
		return Digest{}, fmt.Errorf("encode descriptor: %w", err)
	}
	parts := make([]Digest, 0, len(desc.Modules))
	for i := range desc.Modules {
		raw, err := msgpack.Marshal(&desc.Modules[i])
		if err != nil {
			return Digest{}, fmt.Errorf("encode module %q: %w", desc.Modules[i].Name, err)
		}
		parts = append(parts, sha256.Sum256(raw))
	}
	return Combine(sha256.Sum256(head), parts...), nil
}

// String renders the digest as hex.
func (d Digest) String() string { return fmt.Sprintf("%x", d[:]) }
