//go:build windows

package codegen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/util"
)

func (b *qbeBackend) Generate(cfg *config.Config) (*bytes.Buffer, error) {
	util.Warn("self-contained QBE backend is not supported on Windows, falling back to the system's 'qbe'.")
	if _, err := exec.LookPath("qbe"); err != nil {
		return nil, fmt.Errorf("QBE not found in PATH: %w", err)
	}

	qbeIR := b.IR()
	input, err := os.CreateTemp("", "basc-qbe-*.ssa")
	if err != nil {
		return nil, err
	}
	defer os.Remove(input.Name())
	defer input.Close()

	if _, err = input.WriteString(qbeIR); err != nil {
		return nil, err
	}

	outName := input.Name() + ".s"
	cmd := exec.Command("qbe", "-o", outName, "-t", cfg.QbeTarget, input.Name())
	if err = cmd.Run(); err != nil {
		return nil, fmt.Errorf("\n--- QBE Compilation Failed ---\nGenerated IR:\n%s\n\nError: %w", qbeIR, err)
	}

	out, err := os.Open(outName)
	if err != nil {
		return nil, err
	}
	defer os.Remove(outName)
	defer out.Close()

	var asmBuf bytes.Buffer
	if _, err = io.Copy(&asmBuf, out); err != nil {
		return nil, err
	}
	return &asmBuf, nil
}
