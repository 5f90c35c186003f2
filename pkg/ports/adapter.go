package ports

import "context"

// Querier runs code in the current engine and returns what it printed on stdout.
type Querier interface {
	Query(ctx context.Context, code string) (string, error)
}

// Adapter converts values between the Host dictionary and one engine language.
type Adapter interface {
	// Name is the language name users type in directives (e.g. "R").
	Name() string

	// KernelName is the engine name the language runs in (e.g. "ir").
	KernelName() string

	// InitStatements are run once after the engine starts. May be empty.
	InitStatements() string

	// ToEngine renders a statement that defines name with value in the engine.
	// newName differs from name when name is not a valid identifier there.
	ToEngine(name string, value any) (newName, statement string, err error)

	// FromEngine reads names from the engine (prefix-selected defaults when names is empty).
	FromEngine(ctx context.Context, q Querier, names []string, prefix string) (map[string]any, error)
}
