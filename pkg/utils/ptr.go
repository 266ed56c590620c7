package utils

import "github.com/aarondl/null/v8"

// NullStringPtr - nil для невалидной или пустой строки.
func NullStringPtr(s null.String) *string {
	if !s.Valid || s.String == "" {
		return nil
	}
	return &s.String
}

// StringPtr - nil для пустой строки.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
