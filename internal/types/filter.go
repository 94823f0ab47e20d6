package types

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// NormalizeLimit clamps a caller supplied page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
