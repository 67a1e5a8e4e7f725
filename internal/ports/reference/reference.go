package reference

import "github.com/allinbits/labs/projects/sudokuctl/internal/ports"

// puzzleKind is the one puzzle family this module ships an implementation
// for. Additional kinds would register under their own init() in sibling
// packages; the registry itself is kind-agnostic.
const puzzleKind = "sudoku"

func init() {
	ports.Register(puzzleKind, ports.RoleGenerator, "legacy", legacyGenerator{})
	ports.Register(puzzleKind, ports.RoleSolver, "legacy", legacySolver{})
	ports.Register(puzzleKind, ports.RoleSolver, "novus", novusSolver{})
	ports.Register(puzzleKind, ports.RolePrinter, "legacy", legacyPrinter{})
}
