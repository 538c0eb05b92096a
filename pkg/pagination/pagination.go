package pagination

import "math"

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many rows any page can request.
	MaxLimit = 50
)

// Params holds offset pagination inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Normalize floors the page at 1 and clamps the limit to [1, MaxLimit].
// A missing (zero) limit falls back to DefaultLimit.
func Normalize(p Params) Params {
	return Params{
		Page:  NormalizePage(p.Page),
		Limit: NormalizeLimit(p.Limit),
	}
}

// NormalizePage floors the page number at 1.
func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit == 0 {
		return DefaultLimit
	}
	if limit < 1 {
		return 1
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Offset returns the row offset for the params, assuming they are normalized.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Pages returns ceil(total/limit), reporting a single page for an empty set.
func Pages(total int64, limit int) int {
	if total <= 0 || limit <= 0 {
		return 1
	}
	return int(math.Ceil(float64(total) / float64(limit)))
}
