package utils

// Value dereferences v, returning the zero value when v is nil. Claim fields
// are pointers, so nil-safe access keeps claim handling fail-closed.
func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
