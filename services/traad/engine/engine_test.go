// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	err := Errorf(ErrNoTarget, "nothing to rename at offset %d", 7)

	assert.Equal(t, "nothing to rename at offset 7", err.Error())
	assert.True(t, errors.Is(err, ErrNoTarget))
	assert.False(t, errors.Is(err, ErrSyntax))

	var engineErr *Error
	assert.True(t, errors.As(error(err), &engineErr))

	cause := errors.New("no parser")
	wrapped := &Error{Kind: ErrUnsupported, Message: "notes.txt", Cause: cause}
	assert.ErrorIs(t, wrapped, ErrUnsupported)
	assert.ErrorIs(t, wrapped, cause)
}

func TestOpKind_String(t *testing.T) {
	assert.Equal(t, "change", OpChange.String())
	assert.Equal(t, "create", OpCreate.String())
	assert.Equal(t, "move", OpMove.String())
	assert.Equal(t, "remove", OpRemove.String())
	assert.Equal(t, "unknown", OpKind(9).String())
}
