package utils

// PopLast removes and returns the last element. ok is false for an empty slice.
func PopLast[T any](items []T) (rest []T, last T, ok bool) {
	if len(items) == 0 {
		return items, last, false
	}
	n := len(items) - 1
	return items[:n], items[n], true
}

// At returns the element at index i without modifying the slice.
func At[T any](items []T, i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(items) {
		return zero, false
	}
	return items[i], true
}
