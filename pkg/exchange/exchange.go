// Package exchange moves variables between the Host dictionary and engines.
//
// Exchange failures never fail a cell: every problem is reported through the
// warning function and the dictionary is left as it was.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/metrics"
	"github.com/aretw0/switchboard/pkg/ports"
	"github.com/aretw0/switchboard/pkg/registry"
)

// Runner is the part of the relay loop the exchange needs.
type Runner interface {
	RunSilent(ctx context.Context, name, code string) (domain.Result, error)
	Querier(name string) ports.Querier
}

// WarnFunc reports a problem to the user.
type WarnFunc func(ctx context.Context, msg string)

// Exchanger implements get and put.
type Exchanger struct {
	adapters *registry.Registry
	runner   Runner
	prefix   string
	reserved map[string]bool
	warn     WarnFunc
	logger   *slog.Logger
	metrics  *metrics.Collectors
}

// Option configures the Exchanger.
type Option func(*Exchanger)

// WithPrefix changes the prefix selecting default variables.
func WithPrefix(prefix string) Option {
	return func(x *Exchanger) {
		x.prefix = prefix
	}
}

// WithReserved excludes keys from the default selection.
func WithReserved(keys ...string) Option {
	return func(x *Exchanger) {
		for _, k := range keys {
			x.reserved[k] = true
		}
	}
}

// WithWarnFunc routes user-facing warnings.
func WithWarnFunc(fn WarnFunc) Option {
	return func(x *Exchanger) {
		x.warn = fn
	}
}

// WithLogger configures a logger for the Exchanger.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Exchanger) {
		x.logger = logger
	}
}

// WithMetrics counts exchanges.
func WithMetrics(m *metrics.Collectors) Option {
	return func(x *Exchanger) {
		x.metrics = m
	}
}

// New creates an Exchanger.
func New(adapters *registry.Registry, runner Runner, opts ...Option) *Exchanger {
	x := &Exchanger{
		adapters: adapters,
		runner:   runner,
		prefix:   domain.DefaultExchangePrefix,
		reserved: make(map[string]bool),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.warn == nil {
		x.warn = func(ctx context.Context, msg string) {
			x.logger.WarnContext(ctx, msg)
		}
	}
	return x
}

// SetWarnFunc replaces the warning sink after construction.
func (x *Exchanger) SetWarnFunc(fn WarnFunc) {
	x.warn = fn
}

// Prefix returns the prefix selecting default variables.
func (x *Exchanger) Prefix() string {
	return x.prefix
}

// Reserve excludes keys from the default selection.
func (x *Exchanger) Reserve(keys ...string) {
	for _, k := range keys {
		x.reserved[k] = true
	}
}

// Defaults returns the sorted dictionary keys carrying the prefix that are not reserved.
func (x *Exchanger) Defaults(dict domain.Dict) []string {
	var names []string
	for k := range dict {
		if strings.HasPrefix(k, x.prefix) && !x.reserved[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Get sends names, together with the default variables, from dict to engine.
// A name missing from dict or a value the adapter cannot pass aborts the whole
// exchange before anything is sent.
func (x *Exchanger) Get(ctx context.Context, engine string, dict domain.Dict, names []string) (err error) {
	defer func() { x.metrics.Exchange(string(domain.DirectionGet), err) }()

	names = merge(names, x.Defaults(dict))
	if len(names) == 0 {
		return nil
	}

	var missing []string
	for _, name := range names {
		if _, ok := dict[name]; !ok {
			missing = append(missing, name)
			x.warn(ctx, fmt.Sprintf("Variable %s does not exist", name))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing variables %s", domain.ErrExchange, strings.Join(missing, ", "))
	}

	adapter, err := x.adapter(ctx, engine)
	if err != nil {
		return err
	}

	statements := make([]string, 0, len(names))
	for _, name := range names {
		newName, stmt, err := adapter.ToEngine(name, dict[name])
		if err != nil {
			x.warn(ctx, fmt.Sprintf("Failed to pass variable %s to engine %s: %v", name, engine, err))
			return fmt.Errorf("%w: %s: %w", domain.ErrExchange, name, err)
		}
		if newName != name {
			x.warn(ctx, fmt.Sprintf("Variable %s is passed from Host to %s as %s", name, engine, newName))
		}
		statements = append(statements, stmt)
	}
	if len(statements) == 0 {
		return nil
	}

	x.logger.Debug("Sending variables", "engine", engine, "names", names)
	res, err := x.runner.RunSilent(ctx, engine, strings.Join(statements, "\n"))
	if err != nil {
		x.warn(ctx, fmt.Sprintf("Failed to send variables to engine %s: %v", engine, err))
		return fmt.Errorf("%w: %w", domain.ErrExchange, err)
	}
	if res.Status != domain.StatusOK {
		x.warn(ctx, fmt.Sprintf("Failed to send variables to engine %s: %s %s", engine, res.ErrorName, res.ErrorValue))
		return fmt.Errorf("%w: %s: %s", domain.ErrExchange, res.ErrorName, res.ErrorValue)
	}
	return nil
}

// Put reads names (or the engine's default variables when names is empty)
// from engine and merges them into dict, overwriting existing keys.
func (x *Exchanger) Put(ctx context.Context, engine string, dict domain.Dict, names []string) (err error) {
	defer func() { x.metrics.Exchange(string(domain.DirectionPut), err) }()

	adapter, err := x.adapter(ctx, engine)
	if err != nil {
		return err
	}

	values, err := adapter.FromEngine(ctx, x.runner.Querier(engine), names, x.prefix)
	if err != nil {
		x.warn(ctx, fmt.Sprintf("Failed to get variables from engine %s: %v", engine, err))
		return fmt.Errorf("%w: %w", domain.ErrExchange, err)
	}
	if values == nil {
		x.warn(ctx, fmt.Sprintf("Engine %s did not return a mapping", engine))
		return fmt.Errorf("%w: %s did not return a mapping", domain.ErrExchange, engine)
	}

	for _, name := range names {
		if _, ok := values[name]; !ok {
			x.warn(ctx, fmt.Sprintf("Variable %s does not exist in engine %s", name, engine))
		}
	}
	for k, v := range values {
		dict[k] = v
	}
	x.logger.Debug("Received variables", "engine", engine, "count", len(values))
	return nil
}

// Supports reports whether engine has an adapter.
func (x *Exchanger) Supports(engine string) bool {
	if x.adapters == nil {
		return false
	}
	_, ok := x.adapters.Lookup(engine)
	return ok
}

func (x *Exchanger) adapter(ctx context.Context, engine string) (ports.Adapter, error) {
	if x.adapters != nil {
		if a, ok := x.adapters.Lookup(engine); ok {
			return a, nil
		}
	}
	x.warn(ctx, fmt.Sprintf("Engine %s does not support variable exchange", engine))
	return nil, fmt.Errorf("%w: no adapter for %s", domain.ErrExchange, engine)
}

// merge appends the defaults that are not already named.
func merge(names, defaults []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names)+len(defaults))
	for _, n := range append(append([]string{}, names...), defaults...) {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
