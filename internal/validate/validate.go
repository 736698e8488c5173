package validate

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	reCode  = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	reTitle = regexp.MustCompile(`^[^<>]{1,100}$`)
)

// ID parses a positive integer resource id.
func ID(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n, err == nil && n > 0
}

// Qty parses an order/cart quantity, clamped to a sane ceiling.
func Qty(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	if n > 999 {
		return 999
	}
	return n
}

// Code validates a registry code identifier (group or entry).
func Code(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reCode.MatchString(s)
}

// Title validates a displayable group title.
func Title(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != "" && reTitle.MatchString(s)
}

// Page parses a 1-based page number; anything unparseable is page 1.
func Page(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Limit parses a page size. Zero means unbounded; a ceiling guards
// against abusive values.
func Limit(s string) int {
	if strings.TrimSpace(s) == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	if n > 200 {
		return 200
	}
	return n
}

var sortable = map[string]string{
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
	"state":     "state",
	"_id":       "_id",
}

// Sort parses a JSON sort document like {"createdAt":-1} down to a single
// whitelisted column and direction. Unknown or malformed input sorts by
// creation time, newest first.
func Sort(s string) (column string, asc bool) {
	column, asc = "createdAt", false
	if strings.TrimSpace(s) == "" {
		return
	}
	var doc map[string]int
	if err := json.Unmarshal([]byte(s), &doc); err != nil {
		return
	}
	for k, dir := range doc {
		if col, ok := sortable[k]; ok {
			return col, dir >= 0
		}
	}
	return
}
