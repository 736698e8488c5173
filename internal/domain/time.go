package domain

import "time"

// TimeLayout is the fixed local-timezone timestamp format used on every
// createdAt/updatedAt and history entry. Existing consumers parse exactly
// this shape, not ISO-8601.
const TimeLayout = "2006.01.02 15:04:05"

func Now() string { return time.Now().Format(TimeLayout) }
