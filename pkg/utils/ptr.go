// Copyright (c) 2024-2026 VoxBridge AI
//
// Licensed under GPL-2.0. See LICENSE.md for commercial usage.

package utils

// Ptr returns a pointer to v. Handy for optional scalar fields.
func Ptr[T any](v T) *T {
	return &v
}

// PtrOr returns *p when p is non-nil, otherwise fallback.
func PtrOr[T any](p *T, fallback T) T {
	if p != nil {
		return *p
	}
	return fallback
}
