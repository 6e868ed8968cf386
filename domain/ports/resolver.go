package ports

import "context"

// Resolver turns a module reference into a local file path.
// It runs once, before the template is built.
type Resolver interface {
	Resolve(ctx context.Context, reference string) (string, error)
}
