package inputbuilder

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
)

// ShellFunc resolves the injected build_input collaborator to a shell-out
// against helperPath: block and witness JSON are each written to a temp
// file, the helper is invoked with both paths as arguments, and its
// trimmed stdout is taken as the resulting InputArtifact path. This is
// the production wiring SPEC_FULL.md §6 describes for the otherwise pure
// build_input function boundary.
func ShellFunc(helperPath string) Func {
	return func(blockJSON, witnessJSON []byte) (ethproofs.InputArtifact, error) {
		blockFile, err := writeTempJSON("block-*.json", blockJSON)
		if err != nil {
			return "", fmt.Errorf("write block json: %w", err)
		}
		defer os.Remove(blockFile)

		witnessFile, err := writeTempJSON("witness-*.json", witnessJSON)
		if err != nil {
			return "", fmt.Errorf("write witness json: %w", err)
		}
		defer os.Remove(witnessFile)

		cmd := exec.Command(helperPath, blockFile, witnessFile)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("run input builder %s: %w (stderr: %s)", helperPath, err, stderr.String())
		}

		path := strings.TrimSpace(stdout.String())
		if path == "" {
			return "", fmt.Errorf("input builder %s produced no output path", helperPath)
		}
		return ethproofs.InputArtifact(path), nil
	}
}

func writeTempJSON(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
