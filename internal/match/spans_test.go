package match

import (
	"reflect"
	"testing"
)

func TestContiguous(t *testing.T) {
	tests := []struct {
		name      string
		positions []int
		want      [][2]int
	}{
		{"empty", []int{}, nil},
		{"single position", []int{5}, nil},
		{"two adjacent", []int{4, 5}, [][2]int{{4, 5}}},
		{"regression case", []int{1, 2, 3, 5, 6}, [][2]int{{1, 3}, {5, 6}}},
		{"all adjacent", []int{10, 11, 12, 13}, [][2]int{{10, 13}}},
		{"all isolated", []int{1, 4, 9}, [][2]int{{1, 1}, {4, 4}, {9, 9}}},
		{"repeated position", []int{2, 2, 3}, [][2]int{{2, 3}}},
		{"trailing singleton", []int{1, 2, 8}, [][2]int{{1, 2}, {8, 8}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Contiguous(tt.positions)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Contiguous(%v) = %v, want %v", tt.positions, got, tt.want)
			}
		})
	}
}

// Any ascending sequence whose internal gaps are all <= 1 collapses to a
// single range spanning min..max.
func TestContiguous_DenseSequencesCollapse(t *testing.T) {
	sequences := [][]int{
		{0, 1},
		{3, 4, 5, 6, 7},
		{100, 101, 101, 102},
	}
	for _, seq := range sequences {
		got := Contiguous(seq)
		if len(got) != 1 {
			t.Fatalf("Contiguous(%v) = %v, want one range", seq, got)
		}
		want := [2]int{seq[0], seq[len(seq)-1]}
		if got[0] != want {
			t.Errorf("Contiguous(%v) = %v, want [%v]", seq, got, want)
		}
	}
}
