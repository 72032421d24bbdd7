// Package blockcache provides an ephemeral, process-lifetime cache of
// per-block metadata used by notifications.
package blockcache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
	"github.com/ethproofs/ethproofs-prover/pkg/safe"
)

// Meta is the gas/tx-count summary of a block. The zero value is not a
// valid entry; use Unknown() for the lookup-miss sentinel.
type Meta struct {
	GasUsed uint64
	TxCount uint32
	known   bool
}

// Unknown returns the sentinel value for a cache miss.
func Unknown() Meta {
	return Meta{}
}

// String formats the metadata for log/notification fields. A miss formats
// as "unknown" rather than surfacing an error.
func (m Meta) String() string {
	if !m.known {
		return "unknown"
	}
	return fmt.Sprintf("gas_used=%d tx_count=%d", m.GasUsed, m.TxCount)
}

// Known reports whether this Meta came from a real cache hit.
func (m Meta) Known() bool {
	return m.known
}

// Cache maps BlockID to Meta. Safe for concurrent readers and a single
// writer (the InputGenerator worker); reads never block each other.
type Cache struct {
	mu   sync.RWMutex
	data map[ethproofs.BlockID]Meta
}

// New constructs an empty cache.
func New() *Cache {
	return &Cache{data: make(map[ethproofs.BlockID]Meta)}
}

// Put stores metadata for a block, overwriting any prior entry.
func (c *Cache) Put(block ethproofs.BlockID, meta Meta) {
	meta.known = true
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[block] = meta
}

// Get returns the cached metadata, or the Unknown() sentinel on a miss.
func (c *Cache) Get(block ethproofs.BlockID) Meta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	meta, ok := c.data[block]
	if !ok {
		return Unknown()
	}
	return meta
}

// Len returns the number of cached entries, for tests and diagnostics.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// ErrInvalidBlockData is returned by ParseBlockJSON when gasUsed or
// transactions are missing/malformed.
var ErrInvalidBlockData = fmt.Errorf("invalid_block_data")

// ParseBlockJSON extracts Meta from a raw eth_getBlockByNumber result:
// hex-encoded "gasUsed" and the length of the "transactions" array.
func ParseBlockJSON(raw []byte) (Meta, error) {
	var block struct {
		GasUsed      string            `json:"gasUsed"`
		Transactions []json.RawMessage `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &block); err != nil {
		return Meta{}, fmt.Errorf("%w: %s", ErrInvalidBlockData, err)
	}
	if block.GasUsed == "" {
		return Meta{}, fmt.Errorf("%w: missing gasUsed", ErrInvalidBlockData)
	}
	if block.Transactions == nil {
		return Meta{}, fmt.Errorf("%w: missing transactions", ErrInvalidBlockData)
	}

	gasUsed, err := strconv.ParseUint(strings.TrimPrefix(block.GasUsed, "0x"), 16, 64)
	if err != nil {
		return Meta{}, fmt.Errorf("%w: parse gasUsed: %s", ErrInvalidBlockData, err)
	}

	txCount, err := safe.Uint32(len(block.Transactions))
	if err != nil {
		return Meta{}, fmt.Errorf("%w: %s", ErrInvalidBlockData, err)
	}

	return Meta{GasUsed: gasUsed, TxCount: txCount, known: true}, nil
}
