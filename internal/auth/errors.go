// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package auth

import "errors"

// ErrNotFound is returned when a requested credential does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a credential with the same
// (username, role) pair already exists. Repository implementations map
// their store's uniqueness violation onto this sentinel so the service
// can report a conflict even when two registrations race.
var ErrDuplicate = errors.New("duplicate credential")
