package utils

import (
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ParsePaginationParams читает limit и offset либо page. offset важнее page.
func ParsePaginationParams(values url.Values) (limit uint64, offset uint64) {
	limit = DefaultLimit

	if limitStr := values.Get("limit"); limitStr != "" {
		if l, err := strconv.ParseUint(limitStr, 10, 64); err == nil && l > 0 {
			limit = min(l, MaxLimit)
		}
	}

	if offsetStr := values.Get("offset"); offsetStr != "" {
		if o, err := strconv.ParseUint(offsetStr, 10, 64); err == nil {
			return limit, o
		}
	}
	if pageStr := values.Get("page"); pageStr != "" {
		if p, err := strconv.ParseUint(pageStr, 10, 64); err == nil && p > 0 {
			offset = (p - 1) * limit
		}
	}
	return limit, offset
}
