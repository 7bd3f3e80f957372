// Campuswatch - Campus Network Security Dashboard
// Copyright 2026 Campuswatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/campuswatch/campuswatch

package normalize

import (
	"strconv"

	"github.com/campuswatch/campuswatch/internal/models"
)

// SeverityLabel maps the upstream numeric severity to the canonical level.
//
// The mapping is total and pure: 1 -> critical, 2 -> high, 3 -> medium,
// anything else (including absent, nil, or non-numeric input) -> low.
// No other mapping table is consulted anywhere in the pipeline.
func SeverityLabel(v any) models.Severity {
	n, ok := severityNumber(v)
	if !ok {
		return models.SeverityLow
	}
	switch n {
	case 1:
		return models.SeverityCritical
	case 2:
		return models.SeverityHigh
	case 3:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func severityNumber(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		// JSON numbers decode as float64; reject non-integral values.
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}
