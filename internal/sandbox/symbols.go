package sandbox

import (
	"reflect"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/tabq-dev/tabq/internal/dataset"
	"github.com/tabq-dev/tabq/internal/viz"
)

// allowedStdlib is the runtime allow-list: only these standard packages are
// loaded into the interpreter. Nothing else exists inside the sandbox — no
// os, no net, no syscall — so forbidden operations fail to even compile.
// math/bits is needed by the interpreter's own generic sort/slices sources
// and carries no capability of its own.
var allowedStdlib = map[string]bool{
	"fmt/fmt":         true,
	"strings/strings": true,
	"strconv/strconv": true,
	"math/math":       true,
	"math/bits/bits":  true,
	"sort/sort":       true,
	"time/time":       true,
}

// restrictedSymbols assembles the interpreter symbol table: the stdlib
// allow-list plus the bound data/viz packages. fmt's print family is
// virtualized to the interpreter's stdout, which the Context points at its
// capture buffer.
func restrictedSymbols(frame *dataset.Frame, canvas *viz.Canvas) interp.Exports {
	exports := make(interp.Exports)
	for path, symbols := range stdlib.Symbols {
		if allowedStdlib[path] {
			exports[path] = symbols
		}
	}

	exports["tabq/data/data"] = map[string]reflect.Value{
		"Frame": reflect.ValueOf(func() *dataset.Frame { return frame }),
		"Plot":  reflect.ValueOf(func() *viz.Canvas { return canvas }),
		"Row":   reflect.ValueOf((*dataset.Row)(nil)),
	}

	exports["tabq/viz/viz"] = map[string]reflect.Value{
		"NewFigure":   reflect.ValueOf(viz.NewFigure),
		"KindBar":     reflect.ValueOf(viz.KindBar),
		"KindLine":    reflect.ValueOf(viz.KindLine),
		"KindScatter": reflect.ValueOf(viz.KindScatter),
		"Figure":      reflect.ValueOf((*viz.Figure)(nil)),
	}

	return exports
}
