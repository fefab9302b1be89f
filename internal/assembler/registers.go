package assembler

import (
	"strconv"
	"strings"

	"github.com/rvmtoolchain/rvmc/internal/isa"
)

// registerNames maps every symbolic assembler name to its register, built
// once from isa.Reg.String()'s output so the assembler and the codegen
// layer can never drift apart on naming.
var registerNames = buildRegisterNames()

func buildRegisterNames() map[string]isa.Reg {
	m := make(map[string]isa.Reg)
	for r := isa.Zero; r <= isa.S3; r++ {
		m[strings.ToLower(r.String())] = r
	}
	return m
}

// lookupRegister resolves a register operand by its symbolic name (e.g.
// "t0", "sp") or its numeric form ("r5"), per spec §4.5: "registers by
// numeric or symbolic name".
func lookupRegister(name string) (isa.Reg, bool) {
	lower := strings.ToLower(name)
	if r, ok := registerNames[lower]; ok {
		return r, true
	}
	if strings.HasPrefix(lower, "r") {
		if n, err := strconv.Atoi(lower[1:]); err == nil && n >= 0 && n <= 31 {
			return isa.Reg(n), true
		}
	}
	return 0, false
}
