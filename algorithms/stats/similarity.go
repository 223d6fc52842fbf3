package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// CosineSimilarity returns the cosine of the angle between two vectors, 0
// when either has zero length
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}

// EuclideanDistance returns the L2 distance between two vectors of equal
// length
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	return floats.Distance(a, b, 2)
}

// Standardizer z-scores feature columns with statistics fitted over a
// catalog
type Standardizer struct {
	Mean []float64
	Std  []float64
}

// FitStandardizer computes per-column mean and population standard deviation
func FitStandardizer(rows [][]float64) (*Standardizer, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("cannot fit standardizer on an empty catalog")
	}

	width := len(rows[0])
	s := &Standardizer{
		Mean: make([]float64, width),
		Std:  make([]float64, width),
	}

	column := make([]float64, len(rows))
	for j := range width {
		for i, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), width)
			}
			column[i] = row[j]
		}
		s.Mean[j], s.Std[j] = stat.PopMeanStdDev(column, nil)
	}
	return s, nil
}

// Transform returns the z-scored copy of a row. Constant columns map to 0.
func (s *Standardizer) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		if j >= len(s.Mean) || s.Std[j] == 0 || math.IsNaN(s.Std[j]) {
			continue
		}
		out[j] = (v - s.Mean[j]) / s.Std[j]
	}
	return out
}

// Neighbor is one ranked candidate
type Neighbor struct {
	Index int
	Score float64
}

// RankBySimilarity scores every row against the query by cosine similarity
// and returns the best limit rows, highest score first. Ties keep the lower
// index first. A non-positive limit returns every row.
func RankBySimilarity(query []float64, rows [][]float64, limit int) []Neighbor {
	neighbors := make([]Neighbor, len(rows))
	for i, row := range rows {
		neighbors[i] = Neighbor{Index: i, Score: CosineSimilarity(query, row)}
	}

	sort.SliceStable(neighbors, func(i, j int) bool {
		return neighbors[i].Score > neighbors[j].Score
	})

	if limit > 0 && limit < len(neighbors) {
		neighbors = neighbors[:limit]
	}
	return neighbors
}
