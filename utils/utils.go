// Package utils provides utility functions for the application.
package utils

import "strconv"

func ToPtr[T any](v T) *T {
	return &v
}

func IsTrue(b *bool) bool {
	return b != nil && *b
}

// DerefOr returns the pointed-to value, or def when the pointer is nil
func DerefOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

// UintToString formats an unsigned id for URLs and log fields
func UintToString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
