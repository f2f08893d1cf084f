//go:build !windows

package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/minghu6/bas/pkg/config"
	"modernc.org/libqbe"
)

func (b *qbeBackend) Generate(cfg *config.Config) (*bytes.Buffer, error) {
	qbeIR := b.IR()

	var asmBuf bytes.Buffer
	err := libqbe.Main(cfg.QbeTarget, "input.ssa", strings.NewReader(qbeIR), &asmBuf, nil)
	if err != nil {
		return nil, fmt.Errorf("\n--- QBE Compilation Failed ---\nGenerated IR:\n%s\n\nlibqbe error: %w", qbeIR, err)
	}
	return &asmBuf, nil
}
