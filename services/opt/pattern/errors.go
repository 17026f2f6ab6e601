// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pattern

import "errors"

var (
	// ErrUnboundWildcard is returned by Build when an output pattern
	// references a wildcard the input pattern never bound. This is a
	// rule-authoring error, not a match failure.
	ErrUnboundWildcard = errors.New("unbound wildcard in output pattern")
)
