// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package auth

import (
	"context"

	"github.com/samber/oops"
)

// DefaultHashWorkers bounds how many password hashes may run at once.
const DefaultHashWorkers = 4

// hashGate bounds concurrent password hashing so a burst of login
// attempts cannot monopolize CPU and starve unrelated traffic. Hashing
// is the only deliberately slow computation in this package; token
// work is cheap and runs inline.
type hashGate struct {
	slots chan struct{}
}

func newHashGate(workers int) *hashGate {
	if workers <= 0 {
		workers = DefaultHashWorkers
	}
	return &hashGate{slots: make(chan struct{}, workers)}
}

// run executes fn under a gate slot. If the caller's context is
// cancelled before a slot frees up, the computation is abandoned
// without side effects.
func (g *hashGate) run(ctx context.Context, fn func() error) error {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return oops.Code("AUTH_INTERNAL").
			With("operation", "acquire hash slot").
			Wrap(ctx.Err())
	}
	defer func() { <-g.slots }()

	return fn()
}
