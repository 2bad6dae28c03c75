// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package objects

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the object never existed here.
	ErrNotFound = errors.New("object not found")

	// ErrGone means the object existed and was deleted.
	ErrGone = errors.New("object gone")

	// ErrAlreadyExists is returned by the strict create path.
	ErrAlreadyExists = errors.New("object already exists")

	// ErrDuplicateUUID means more than one record claims a local uuid.
	ErrDuplicateUUID = errors.New("duplicate object uuid")
)

// UnknownTypeError is returned by strict operations for tags outside the
// type registry.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown object type %q", e.Type)
}
