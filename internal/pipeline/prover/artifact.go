package prover

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// proofBinaryNames lists the candidate proof filenames in preference
// order (spec.md §4.8: compressed form preferred when present).
var proofBinaryNames = []string{"vadcop_final_proof.compressed.bin", "vadcop_final_proof.bin"}

type resultJSON struct {
	Cycles uint64  `json:"cycles"`
	Time   float64 `json:"time"`
	ID     string  `json:"id"`
}

// artifacts is the parsed, ready-to-submit output of a successful prover run.
type artifacts struct {
	Cycles     uint64
	TimeMS     uint64
	ProofB64   string
	VerifierID string
}

// readArtifacts parses result.json and the proof binary out of dir
// (spec.md §4.8's normal-exit artifact reading).
func readArtifacts(dir string) (artifacts, error) {
	resultPath := filepath.Join(dir, "result.json")
	raw, err := os.ReadFile(resultPath)
	if err != nil {
		return artifacts{}, fmt.Errorf("read result.json: %w", err)
	}

	var result resultJSON
	if err := json.Unmarshal(raw, &result); err != nil {
		return artifacts{}, fmt.Errorf("parse result.json: %w", err)
	}

	proofPath, err := firstExisting(dir, proofBinaryNames)
	if err != nil {
		return artifacts{}, err
	}
	proofBytes, err := os.ReadFile(proofPath)
	if err != nil {
		return artifacts{}, fmt.Errorf("read proof binary: %w", err)
	}

	return artifacts{
		Cycles:     result.Cycles,
		TimeMS:     uint64(math.Floor(result.Time * 1000)),
		ProofB64:   base64.RawStdEncoding.EncodeToString(proofBytes),
		VerifierID: result.ID,
	}, nil
}

func firstExisting(dir string, names []string) (string, error) {
	for _, name := range names {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no proof binary found (tried %v)", names)
}
