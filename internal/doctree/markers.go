package doctree

import "sort"

// markerList is a position-sorted marker slice with the navigation queries
// shared by Buffer and Document.
type markerList []Marker

// sortStable orders markers by position; markers at the same position keep
// their insertion order.
func (ml markerList) sortStable() {
	sort.SliceStable(ml, func(i, j int) bool {
		return ml[i].Position < ml[j].Position
	})
}

// firstAfter returns the index of the first marker with Position > pos.
func (ml markerList) firstAfter(pos int) int {
	return sort.Search(len(ml), func(i int) bool { return ml[i].Position > pos })
}

// firstAtOrAfter returns the index of the first marker with Position >= pos.
func (ml markerList) firstAtOrAfter(pos int) int {
	return sort.Search(len(ml), func(i int) bool { return ml[i].Position >= pos })
}

func (ml markerList) next(pos int, kind MarkerKind) int {
	for i := ml.firstAfter(pos); i < len(ml); i++ {
		if ml[i].Kind == kind {
			return i
		}
	}
	return -1
}

func (ml markerList) previous(pos int, kind MarkerKind) int {
	for i := ml.firstAtOrAfter(pos) - 1; i >= 0; i-- {
		if ml[i].Kind == kind {
			return i
		}
	}
	return -1
}

func (ml markerList) current(pos int, kind MarkerKind) int {
	for i := ml.firstAfter(pos) - 1; i >= 0; i-- {
		if ml[i].Kind == kind {
			return i
		}
	}
	return -1
}

func (ml markerList) count(kind MarkerKind) int {
	n := 0
	for _, m := range ml {
		if m.Kind == kind {
			n++
		}
	}
	return n
}

func (ml markerList) nthPosition(kind MarkerKind, index int) int {
	if index < 0 {
		return -1
	}
	for _, m := range ml {
		if m.Kind != kind {
			continue
		}
		if index == 0 {
			return m.Position
		}
		index--
	}
	return -1
}

func (ml markerList) headings(level int) []Marker {
	var out []Marker
	for _, m := range ml {
		if !m.Kind.IsHeading() {
			continue
		}
		if level > 0 && m.Level != level {
			continue
		}
		out = append(out, m)
	}
	return out
}
