package device

import (
	"fmt"
	"strings"
	"testing"
)

func TestBindNamesRank(t *testing.T) {
	for rank := 0; rank < 3; rank++ {
		d := Bind(rank)
		if d.Rank != rank || d.String() != fmt.Sprintf("cpu:%d", rank) {
			t.Fatalf("Bind(%d) = %+v", rank, d)
		}
		if !strings.HasPrefix(d.Describe(), d.Name) {
			t.Fatalf("Describe() = %q", d.Describe())
		}
	}
}
