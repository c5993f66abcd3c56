// Package vertex numbers the vertices of decomposed line segments.
//
// Input must already be sorted so each segment's vertices are contiguous.
// The grouping is not checked: a segment id that reappears after a
// different one starts again at 1.
package vertex

// Vertex is one point produced by splitting a segment into its vertices.
type Vertex struct {
	SegmentID        int64
	SequencePosition int
}

// AssignSequencePositions sets SequencePosition on each record in place,
// counting from 1 and restarting whenever SegmentID changes.
func AssignSequencePositions(records []Vertex) {
	if len(records) == 0 {
		return
	}
	current := records[0].SegmentID
	next := 1
	for i := range records {
		if records[i].SegmentID != current {
			current = records[i].SegmentID
			next = 1
		}
		records[i].SequencePosition = next
		next++
	}
}

// Positions returns the positions AssignSequencePositions would assign to
// records with the given segment ids, in the same order.
func Positions(segmentIDs []int64) []int {
	out := make([]int, len(segmentIDs))
	for i, id := range segmentIDs {
		if i > 0 && id == segmentIDs[i-1] {
			out[i] = out[i-1] + 1
			continue
		}
		out[i] = 1
	}
	return out
}
