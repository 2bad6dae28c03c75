// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 OpenCloudMesh Authors

package repair

import "time"

// Ladder is the fixed backoff sequence between failed repairs of one
// identity. Once at the last step it stays there.
var Ladder = []time.Duration{
	time.Minute,
	5 * time.Minute,
	30 * time.Minute,
	2 * time.Hour,
	6 * time.Hour,
	24 * time.Hour,
	48 * time.Hour,
	8 * 24 * time.Hour,
}

// NextInterval returns the first ladder step larger than current, or the
// ceiling.
func NextInterval(current time.Duration) time.Duration {
	for _, step := range Ladder {
		if step > current {
			return step
		}
	}
	return Ladder[len(Ladder)-1]
}
