// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package auth

import (
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Principal is the authenticated identity context attached to a request
// or connection after successful token verification. It lives only for
// the duration of the request.
type Principal struct {
	ID       ulid.ULID
	Username string
	Role     Role
}

// RequireRole permits the principal if it holds the required role and
// rejects it with AUTH_FORBIDDEN otherwise. Pure comparison, no I/O;
// callers that accept any authenticated principal skip this entirely,
// and both the HTTP and stream surfaces compose it at the call site.
func RequireRole(p Principal, required Role) (Principal, error) {
	if p.Role != required {
		return Principal{}, oops.Code("AUTH_FORBIDDEN").
			With("required_role", string(required)).
			With("role", string(p.Role)).
			Errorf("access denied: required role %q", required)
	}
	return p, nil
}
