package starlark

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/leapnb/pkg/adapter"
	"github.com/leapstack-labs/leapnb/pkg/core"
	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// maxQueryRows caps rows returned by the query() builtin.
const maxQueryRows = 10000

// cellEnv carries what builtins need for one execution.
type cellEnv struct {
	ctx     context.Context
	emit    core.ChunkFunc
	open    OpenFunc
	target  *core.TargetConfig
	rowsCap int
}

// predeclared builds the builtins for one cell execution:
//
//	table(rows, columns=None)  emit a table chunk from a list of dicts
//	eprint(*args, sep=" ")     write a line to stderr
//	query(sql)                 run SQL on the configured target (when present)
//	target                     struct(type, database, schema) of the target
//	json, math                 standard Starlark modules
func predeclared(env *cellEnv) starlark.StringDict {
	globals := starlark.StringDict{
		"table":  starlark.NewBuiltin("table", env.table),
		"eprint": starlark.NewBuiltin("eprint", env.eprint),
		"json":   starjson.Module,
		"math":   starmath.Module,
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
	}

	if env.target != nil {
		globals["target"] = starlarkstruct.FromStringDict(starlark.String("target"), starlark.StringDict{
			"type":     starlark.String(env.target.Type),
			"database": starlark.String(env.target.Database),
			"schema":   starlark.String(env.target.Schema),
		})
	}
	if env.open != nil {
		globals["query"] = starlark.NewBuiltin("query", env.query)
	}
	return globals
}

func (env *cellEnv) table(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var rowsVal starlark.Iterable
	var colsVal starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "rows", &rowsVal, "columns?", &colsVal); err != nil {
		return nil, err
	}

	var rows []map[string]any
	iter := rowsVal.Iterate()
	defer iter.Done()
	var item starlark.Value
	for i := 0; iter.Next(&item); i++ {
		dict, ok := item.(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("%s: row %d is %s, want dict", b.Name(), i, item.Type())
		}
		gv, err := ToGo(dict)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", b.Name(), i, err)
		}
		rows = append(rows, gv.(map[string]any))
	}

	var columns []string
	if colsVal != starlark.None {
		gv, err := ToGo(colsVal)
		if err != nil {
			return nil, fmt.Errorf("%s: columns: %w", b.Name(), err)
		}
		list, ok := gv.([]any)
		if !ok {
			return nil, fmt.Errorf("%s: columns must be a list of strings", b.Name())
		}
		for _, c := range list {
			s, ok := c.(string)
			if !ok {
				return nil, fmt.Errorf("%s: columns must be a list of strings", b.Name())
			}
			columns = append(columns, s)
		}
	}

	chunk := core.Table(columns, rows)
	if err := chunk.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	env.emit(chunk)
	return starlark.None, nil
}

func (env *cellEnv) eprint(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	sep := " "
	if err := starlark.UnpackArgs(b.Name(), nil, kwargs, "sep?", &sep); err != nil {
		return nil, err
	}

	parts := make([]string, len(args))
	for i, a := range args {
		if s, ok := a.(starlark.String); ok {
			parts[i] = string(s)
		} else {
			parts[i] = a.String()
		}
	}
	env.emit(core.Stderr(strings.Join(parts, sep) + "\n"))
	return starlark.None, nil
}

func (env *cellEnv) query(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var sqlText string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &sqlText); err != nil {
		return nil, err
	}

	db, err := env.open(env.ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: database unavailable: %w", b.Name(), err)
	}
	rows, err := db.Query(env.ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	res, err := adapter.Collect(rows, env.rowsCap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return GoToStarlark(res.Rows)
}
