package bpf

import (
	"github.com/mr-tron/base58"
	"github.com/zeebo/blake3"
)

// Tag returns a stable identifier for the encoded program: the base58 form
// of its BLAKE3 digest. Two programs share a tag iff their bytes are equal.
func (p *Program) Tag() string {
	return CodeTag(p.raw)
}

// CodeTag is Tag for raw, not yet decoded, bytecode.
func CodeTag(code []byte) string {
	sum := blake3.Sum256(code)

	return base58.Encode(sum[:])
}
