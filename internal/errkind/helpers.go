// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package errkind

import (
	"errors"
	"fmt"
)

// Wrap creates a new error that wraps the given error with additional
// context. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted
// context. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Kind returns a short label describing which §7 error kind err contains,
// or "" if err does not match a known kind, so a caller can name an
// error's kind without a type switch of its own.
func Kind(err error) string {
	switch {
	case As(err, new(*InvalidTrackerError)):
		return "InvalidTracker"
	case As(err, new(*TitleUnparseableError)):
		return "TitleUnparseable"
	case As(err, new(*SeriesUnknownError)):
		return "SeriesUnknown"
	case As(err, new(*SourceUnknownError)):
		return "SourceUnknown"
	case As(err, new(*RoutingError)):
		return "RoutingMissing"
	case As(err, new(*CrankError)):
		return "CrankError"
	case As(err, new(*WorkflowCrankError)):
		return "WorkflowCrankError"
	case As(err, new(*PackageError)):
		return "PackageError"
	case As(err, new(*SnapStoreError)):
		return "SnapStoreError"
	case As(err, new(*GitTagError)):
		return "GitTagError"
	case As(err, new(*BugMailConfigMissingError)):
		return "BugMailConfigMissing"
	default:
		return ""
	}
}
