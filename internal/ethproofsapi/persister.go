package ethproofsapi

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
)

// FilePersister saves the exact encoded "proved" request body to
// output/<block>/<block>.json, matching the prover subprocess's own
// output layout (spec.md §6 supplemented feature).
type FilePersister struct {
	outputDir string
}

// NewFilePersister constructs a FilePersister rooted at outputDir.
func NewFilePersister(outputDir string) *FilePersister {
	return &FilePersister{outputDir: outputDir}
}

// SaveProvedRequest implements Persister.
func (p *FilePersister) SaveProvedRequest(block ethproofs.BlockID, body []byte) error {
	dir := filepath.Join(p.outputDir, fmt.Sprintf("%d", uint64(block)))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%d.json", uint64(block)))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write proved request audit file: %w", err)
	}
	return nil
}
