package state

import "sort"

// UpsertSorted inserts item into a list kept sorted ascending by key,
// or replaces the element whose key matches. The sorted position is
// found by binary search; replacement reassigns a single index so
// untouched siblings keep their identity for downstream change
// detection.
func UpsertSorted[T any](list []T, item T, key func(T) string) []T {
	k := key(item)
	i := sort.Search(len(list), func(j int) bool { return key(list[j]) >= k })
	if i < len(list) && key(list[i]) == k {
		list[i] = item
		return list
	}
	list = append(list, item)
	copy(list[i+1:], list[i:])
	list[i] = item
	return list
}

// DeleteSorted removes the element with the given key from a sorted
// list. Absence is not an error; the second return reports whether a
// removal happened, making replayed delete events idempotent.
func DeleteSorted[T any](list []T, k string, key func(T) string) ([]T, bool) {
	i := sort.Search(len(list), func(j int) bool { return key(list[j]) >= k })
	if i >= len(list) || key(list[i]) != k {
		return list, false
	}
	copy(list[i:], list[i+1:])
	var zero T
	list[len(list)-1] = zero
	return list[:len(list)-1], true
}

// FindSorted returns the element with the given key, or the zero value
// and false.
func FindSorted[T any](list []T, k string, key func(T) string) (T, bool) {
	i := sort.Search(len(list), func(j int) bool { return key(list[j]) >= k })
	if i < len(list) && key(list[i]) == k {
		return list[i], true
	}
	var zero T
	return zero, false
}
