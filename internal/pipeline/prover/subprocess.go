package prover

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ethproofs/ethproofs-prover/internal/ethproofs"
)

// CargoZiskRunner launches the cargo-zisk prove subprocess (spec.md
// §4.8). Its lifecycle is watched by a dedicated "nanny" goroutine that
// blocks on Wait and reports back whether the process exited cleanly or
// disappeared abnormally, mirroring the rclone/worker-manager
// subprocess-supervision shape used elsewhere in the corpus.
type CargoZiskRunner struct {
	ElfPath   string
	OutputDir string
}

// Run implements Runner.
func (r CargoZiskRunner) Run(block ethproofs.BlockID, input ethproofs.InputArtifact, onOutput func(line string)) RunResult {
	outDir := filepath.Join(r.OutputDir, fmt.Sprintf("%d", uint64(block)))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return RunResult{Crashed: true, Err: fmt.Errorf("create output dir: %w", err), OutputDir: outDir}
	}

	cmd := exec.Command("cargo-zisk", "prove", "-e", r.ElfPath, "-i", string(input), "-o", outDir, "-a", "-u")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return RunResult{Crashed: true, Err: fmt.Errorf("stdout pipe: %w", err), OutputDir: outDir}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return RunResult{Crashed: true, Err: fmt.Errorf("stderr pipe: %w", err), OutputDir: outDir}
	}

	if err := cmd.Start(); err != nil {
		return RunResult{Crashed: true, Err: fmt.Errorf("start cargo-zisk: %w", err), OutputDir: outDir}
	}

	streamDone := make(chan struct{}, 2)
	go streamLines(stdout, onOutput, streamDone)
	go streamLines(stderr, onOutput, streamDone)
	<-streamDone
	<-streamDone

	// nanny: cmd.Wait() returns once the process exits by any means. An
	// *exec.ExitError whose process exited means it reported a clean
	// exit status (just non-zero); a process terminated by a signal (OOM
	// kill, external kill) or any other Wait error is a crash.
	waitErr := cmd.Wait()
	if waitErr == nil {
		return RunResult{ExitStatus: 0, OutputDir: outDir}
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok && exitErr.Exited() {
		return RunResult{ExitStatus: exitErr.ExitCode(), OutputDir: outDir}
	}
	return RunResult{Crashed: true, Err: waitErr, OutputDir: outDir}
}

func streamLines(r io.Reader, onOutput func(line string), done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if onOutput != nil {
			onOutput(scanner.Text())
		}
	}
}
