// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/codewatch/codewatch/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("AUTH_CONFLICT").Errorf("test error")
	// Should not fail
	errutil.AssertErrorCode(t, err, "AUTH_CONFLICT")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("credential_id", "123").Errorf("test error")
	// Should not fail
	errutil.AssertErrorContext(t, err, "credential_id", "123")
}
