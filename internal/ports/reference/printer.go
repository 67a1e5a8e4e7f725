package reference

import (
	"bytes"
	"fmt"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
)

// legacyPrinter stands in for the original PDF renderer (see the teacher's
// printer/legacy/_impl.py layout/page/rendering pipeline), which draws
// puzzle grids onto a landscape, multi-page PDF. Real PDF rendering
// fidelity is out of scope here (§1) — ExportBundle instead produces a
// deterministic byte stream that records exactly the inputs that would
// have driven that layout, so tests can assert on its shape without a
// PDF library in the dependency graph.
type legacyPrinter struct{}

func (legacyPrinter) ExportBundle(complete, verdict artifact.Map, template, page string, dpi int) ([]byte, error) {
	grid, ok := complete["grid"].(string)
	if !ok {
		return nil, fmt.Errorf("reference: complete grid artifact missing string grid field")
	}
	unique, _ := verdict["unique"].(bool)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%SUDOKUCTL-PLACEHOLDER-1\n")
	fmt.Fprintf(&buf, "template=%s\n", template)
	fmt.Fprintf(&buf, "page=%s\n", page)
	fmt.Fprintf(&buf, "dpi=%d\n", dpi)
	fmt.Fprintf(&buf, "unique=%t\n", unique)
	fmt.Fprintf(&buf, "grid_len=%d\n", len(grid))
	buf.WriteString(grid)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
