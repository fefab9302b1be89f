// Package llvmbridge is the feature-flagged alternative codegen path
// --llvm selects in place of internal/codegen's native bank-aware backend.
// It goes only as far as proving out a module and target layout, built on
// tinygo.org/x/go-llvm: no LLVM target triple models this architecture's
// segmented 16-bit banked memory (a pointer here is two words, address
// plus bank, and dereferencing one requires a runtime bank-overflow carry
// sequence LLVM's pointer model has no vocabulary for), so full
// instruction lowering through LLVM is out of scope and documented as such
// in DESIGN.md rather than silently dropped — the dependency still gets a
// real, reachable call path through the CLI's --llvm flag.
package llvmbridge

import (
	"github.com/pkg/errors"
	"github.com/rvmtoolchain/rvmc/internal/config"
	"github.com/rvmtoolchain/rvmc/internal/diag"
	"github.com/rvmtoolchain/rvmc/internal/ir"
	"github.com/rvmtoolchain/rvmc/internal/logging"
	"github.com/sirupsen/logrus"
	llvm "tinygo.org/x/go-llvm"
)

// Generate builds an (empty, unpopulated) LLVM module for mod and reports
// why full lowering does not proceed past that point. It is the --llvm
// counterpart to internal/codegen.Generate, sharing that package's
// Module/config.Options inputs so cmd/compile can branch on cfg.UseLLVM
// without otherwise changing its pipeline shape.
func Generate(mod *ir.Module, cfg config.Options) error {
	ctx := llvm.NewContext()
	defer ctx.Dispose()

	name := "module"
	if len(mod.Functions) > 0 {
		name = mod.Functions[0].Name
	}
	m := ctx.NewModule(name)
	defer m.Dispose()

	log := logging.Logger()
	log.WithFields(logrus.Fields{
		"module_name": name,
		"functions":   len(mod.Functions),
	}).Debug("llvmbridge: module shell constructed; native lowering required past this point")

	return errors.Wrap(
		diag.New(diag.Internal, diag.Span{}, "llvm backend does not lower function bodies: this architecture's banked fat pointers have no LLVM target representation; pass without --llvm to use the native backend"),
		"llvmbridge",
	)
}
