package party

import "sort"

// IDSlice is a sorted, duplicate-free slice of IDs.
type IDSlice []ID

// NewIDSlice returns a sorted copy of ids with duplicates removed.
func NewIDSlice(ids []ID) IDSlice {
	out := make(IDSlice, 0, len(ids))
	out = append(out, ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	// compact duplicates in place
	n := 0
	for i, id := range out {
		if i == 0 || out[n-1] != id {
			out[n] = id
			n++
		}
	}
	return out[:n]
}

// Sorted reports whether the slice is strictly increasing.
func (ids IDSlice) Sorted() bool {
	for i := range ids {
		if i > 0 && ids[i-1] >= ids[i] {
			return false
		}
	}
	return true
}

// Contains reports whether every id in the arguments is present.
// Assumes the slice is sorted.
func (ids IDSlice) Contains(queries ...ID) bool {
	for _, q := range queries {
		if _, ok := ids.search(q); !ok {
			return false
		}
	}
	return true
}

// GetIndex returns the index of id, or -1 when absent.
// Assumes the slice is sorted.
func (ids IDSlice) GetIndex(id ID) int {
	if idx, ok := ids.search(id); ok {
		return idx
	}
	return -1
}

func (ids IDSlice) search(x ID) (int, bool) {
	idx := sort.Search(len(ids), func(i int) bool { return ids[i] >= x })
	if idx < len(ids) && ids[idx] == x {
		return idx, true
	}
	return 0, false
}

// Remove returns a copy of the slice without id.
func (ids IDSlice) Remove(id ID) IDSlice {
	out := make(IDSlice, 0, len(ids))
	for _, other := range ids {
		if other != id {
			out = append(out, other)
		}
	}
	return out
}

// Copy returns a fresh copy of the slice.
func (ids IDSlice) Copy() IDSlice {
	out := make(IDSlice, len(ids))
	copy(out, ids)
	return out
}

// Sequential returns the IDSlice {1, 2, …, n}, the canonical identifier
// assignment used when participants are enumerated by a transport.
func Sequential(n int) IDSlice {
	ids := make(IDSlice, n)
	for i := range ids {
		ids[i] = ID(i + 1)
	}
	return ids
}
