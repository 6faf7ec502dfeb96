package middleware

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/bryanwahyu/geoanalysis/internal/domain/operations"
	"github.com/bryanwahyu/geoanalysis/internal/geometry"
)

// Input validation and sanitization utilities. Errors wrap
// operations.ErrInvalidParameter so the router answers 400.

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)

// ValidateID checks a path id (uuid or short slug).
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: invalid id %q", operations.ErrInvalidParameter, id)
	}
	return nil
}

// ParseBBox parses "minx,miny,maxx,maxy" in lon/lat. An empty string
// returns nil, nil.
func ParseBBox(raw string) (*orb.Bound, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: bbox must be minx,miny,maxx,maxy", operations.ErrInvalidParameter)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bbox value %q", operations.ErrInvalidParameter, p)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if !geometry.ValidBound(b) {
		return nil, fmt.Errorf("%w: bbox %s out of range or empty", operations.ErrInvalidParameter, raw)
	}
	return &b, nil
}

// ParseLimit validates pagination limit. Empty gives def, values above
// maxLimit are clamped.
func ParseLimit(raw string, def, maxLimit int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit %q", operations.ErrInvalidParameter, raw)
	}
	if n == 0 {
		return def, nil
	}
	return min(n, maxLimit), nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}
