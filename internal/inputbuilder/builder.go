// Package inputbuilder adapts the native ZK input-building codec: a pure
// function build_input(block_json, witness_json) -> path that this
// system treats as an external collaborator (spec.md §1/§6) rather than
// something to reimplement.
package inputbuilder

import (
	"fmt"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
)

// Func is the pure-function boundary: given raw block JSON and raw
// execution-witness JSON, it produces the filesystem path (or opaque
// handle) the prover subprocess consumes.
type Func func(blockJSON, witnessJSON []byte) (ethproofs.InputArtifact, error)

// Builder wraps a Func so it can be passed around as a typed dependency
// and swapped for a test double.
type Builder struct {
	build Func
}

// New wraps an injected build function.
func New(build Func) *Builder {
	return &Builder{build: build}
}

// Build delegates to the wrapped function.
func (b *Builder) Build(blockJSON, witnessJSON []byte) (ethproofs.InputArtifact, error) {
	if b.build == nil {
		return "", fmt.Errorf("inputbuilder: no build function configured")
	}
	return b.build(blockJSON, witnessJSON)
}
