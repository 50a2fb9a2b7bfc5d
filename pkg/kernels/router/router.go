// Package router provides the "local" kernel: it dispatches each request to a
// per-language transport, python-like code to Starlark and SQL to the SQL
// kernel. Both share one database, so Starlark cells can query() the tables
// SQL cells create.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/leapstack-labs/leapnb/pkg/kernels/sqlkernel"
	"github.com/leapstack-labs/leapnb/pkg/kernels/starlark"
)

// Name is the registry name of the routing kernel.
const Name = "local"

// Router dispatches requests by language.
type Router struct {
	routes map[core.Language]kernel.Transport
	logger *slog.Logger
}

// New creates a router over the given routes. A nil logger discards logs.
func New(routes map[core.Language]kernel.Transport, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{routes: routes, logger: logger}
}

// Settings is the decoded form of kernel.Options.Settings.
type Settings struct {
	Starlark starlark.Config  `mapstructure:"starlark"`
	SQL      sqlkernel.Config `mapstructure:"sql"`
}

func init() {
	kernel.Register(Name, func(opts kernel.Options) (kernel.Transport, error) {
		var s Settings
		if err := kernel.DecodeSettings(opts.Settings, &s); err != nil {
			return nil, err
		}

		target := sqlkernel.DefaultTarget()
		if opts.Target != nil && opts.Target.Type != "" {
			target = *opts.Target
		}

		sql := sqlkernel.New(target, s.SQL, opts.Logger.With(slog.String("kernel", sqlkernel.Name)))
		py := starlark.New(s.Starlark, opts.Logger.With(slog.String("kernel", starlark.Name)),
			starlark.WithDatabase(sql.Adapter, &target))

		return New(map[core.Language]kernel.Transport{
			core.LanguagePython: py,
			core.LanguageSQL:    sql,
		}, opts.Logger), nil
	})
}

// Execute forwards req to the transport registered for its language.
// An unrouted language is reported in-band.
func (r *Router) Execute(ctx context.Context, req core.ExecutionRequest, onChunk core.ChunkFunc) error {
	t, ok := r.routes[req.Language]
	if !ok {
		onChunk(core.ErrorChunk(fmt.Sprintf("No kernel available for language %q", req.Language)))
		return nil
	}
	r.logger.Debug("routing request", slog.String("language", string(req.Language)))
	return t.Execute(ctx, req, onChunk)
}

// Languages returns the routed languages (sorted).
func (r *Router) Languages() []core.Language {
	langs := make([]core.Language, 0, len(r.routes))
	for l := range r.routes {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool { return langs[i] < langs[j] })
	return langs
}

// Close closes every routed transport that holds resources.
func (r *Router) Close() error {
	var errs []error
	for _, t := range r.routes {
		if err := kernel.Close(t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ensure Router implements kernel.Transport interface
var _ kernel.Transport = (*Router)(nil)
