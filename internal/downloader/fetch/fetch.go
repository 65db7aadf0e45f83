package fetch

import "context"

// Fetcher moves the bytes of one resolved link to a local destination. The
// scheduler decides whether and what to fetch; implementations decide how.
type Fetcher interface {
	Fetch(ctx context.Context, link, dest string) error
}

// Func adapts a function to the Fetcher interface (tests).
type Func func(ctx context.Context, link, dest string) error

func (f Func) Fetch(ctx context.Context, link, dest string) error {
	return f(ctx, link, dest)
}
