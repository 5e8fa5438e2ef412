package util

import (
	"math"
	"strconv"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 2
	MaxPageSize     = 100

	// MaxPage keeps (page-1)*size within int for any allowed size.
	MaxPage = math.MaxInt/MaxPageSize + 1
)

func ParseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

// Normalize applies defaults to non-positive values and caps page and size.
func Normalize(page, size int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func Calculate(page, size int) (offset, limit int) {
	page, size = Normalize(page, size)
	return (page - 1) * size, size
}

func TotalPages(total int64, limit int) int64 {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}
