package gossa

import (
	"fmt"
	"strings"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// Program is a set of loaded packages in SSA form.
type Program struct {
	Prog     *ssa.Program
	Packages []*ssa.Package
}

// Load parses, type checks and builds the packages matching patterns
// relative to dir.
func Load(dir string, patterns ...string) (*Program, error) {
	cfg := &packages.Config{
		Mode: packages.LoadAllSyntax,
		Dir:  dir,
	}
	initial, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, err
	}

	var msgs []string
	packages.Visit(initial, nil, func(pkg *packages.Package) {
		for _, err := range pkg.Errors {
			msgs = append(msgs, err.Error())
		}
	})
	if len(msgs) > 0 {
		return nil, fmt.Errorf("gossa: load: %s", strings.Join(msgs, "; "))
	}

	prog, pkgs := ssautil.Packages(initial, ssa.SanityCheckFunctions)
	for _, pkg := range pkgs {
		if pkg != nil {
			pkg.Build()
		}
	}
	return &Program{Prog: prog, Packages: pkgs}, nil
}

// Function returns the package-level function named name. The name may be
// qualified by the package name or import path.
func (p *Program) Function(name string) *ssa.Function {
	pkgName, fnName := "", name
	if i := strings.LastIndex(name, "."); i >= 0 {
		pkgName, fnName = name[:i], name[i+1:]
	}

	for _, pkg := range p.Packages {
		if pkg == nil {
			continue
		}
		if pkgName != "" && pkgName != pkg.Pkg.Name() && pkgName != pkg.Pkg.Path() {
			continue
		}
		if fn := pkg.Func(fnName); fn != nil {
			return fn
		}
	}
	return nil
}

// Functions returns the exported, non-generic package-level functions of
// the loaded packages.
func (p *Program) Functions() []*ssa.Function {
	var a []*ssa.Function
	for _, pkg := range p.Packages {
		if pkg == nil {
			continue
		}
		for _, m := range pkg.Members {
			fn, ok := m.(*ssa.Function)
			if !ok || len(fn.Blocks) == 0 || fn.TypeParams().Len() > 0 {
				continue
			}
			if fn.Synthetic != "" || fn.Name() == "main" {
				continue
			}
			a = append(a, fn)
		}
	}
	return a
}
