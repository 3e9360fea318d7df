// Package matcher implements nearest-neighbor face matching between the
// detections of one class photo and a roster of enrolled students.
package matcher

import (
	"math"
	"sort"
)

// Detection is one detected face: its index within the photo's detections
// and its embedding.
type Detection struct {
	Index     int
	Embedding []float32
}

// RosterEntry is a roster student eligible for matching. Entries without a
// reference embedding are skipped during the scan.
type RosterEntry struct {
	StudentID     int64
	Name          string
	StudentNumber string
	Embedding     []float32
}

// Match is one detection assigned to a roster student.
type Match struct {
	FaceIndex     int
	StudentID     int64
	StudentName   string
	StudentNumber string
	Confidence    float64
}

// EuclideanDistance computes the L2 distance between two embeddings.
// Returns +Inf for mismatched or empty vectors so malformed references
// never win a comparison.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Run matches each detection independently, in detection-index order,
// against the roster. A detection matches the roster student at minimal
// Euclidean distance, but only when that distance is strictly below
// tolerance; otherwise its index lands in the unmatched list. Confidence is
// 1 - distance, not clamped below zero.
//
// The assignment is greedy per detection, not one-to-one: the same student
// can be the best match for several detections (look-alikes, encoding
// collisions). That is surfaced to the reviewer rather than deduplicated,
// since hiding a duplicate can mask a mismatched enrollment. Ties at the
// exact minimal distance resolve to the lowest student id.
func Run(detections []Detection, roster []RosterEntry, tolerance float64) ([]Match, []int) {
	// Deterministic tie-breaking: scan the roster in ascending id order.
	sorted := make([]RosterEntry, len(roster))
	copy(sorted, roster)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].StudentID < sorted[j].StudentID
	})

	matches := make([]Match, 0, len(detections))
	unmatched := make([]int, 0)

	for _, det := range detections {
		var best *RosterEntry
		bestDistance := math.Inf(1)

		for i := range sorted {
			entry := &sorted[i]
			if len(entry.Embedding) == 0 {
				continue
			}
			distance := EuclideanDistance(det.Embedding, entry.Embedding)
			if distance < tolerance && distance < bestDistance {
				best = entry
				bestDistance = distance
			}
		}

		if best == nil {
			unmatched = append(unmatched, det.Index)
			continue
		}
		matches = append(matches, Match{
			FaceIndex:     det.Index,
			StudentID:     best.StudentID,
			StudentName:   best.Name,
			StudentNumber: best.StudentNumber,
			Confidence:    1 - bestDistance,
		})
	}

	return matches, unmatched
}
