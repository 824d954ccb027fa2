package ids

import (
	"sort"
	"testing"
	"time"
)

func TestGenerator_SortsInCreationOrder(t *testing.T) {
	t.Parallel()

	g := NewGenerator()
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	var got []string
	for i := 0; i < 50; i++ {
		id, err := g.New(now)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if len(id) != 26 {
			t.Fatalf("len=%d want=26", len(id))
		}
		got = append(got, id)
	}
	if !sort.StringsAreSorted(got) {
		t.Fatalf("ids within one millisecond are not monotonic: %v", got)
	}

	later, _ := g.New(now.Add(time.Second))
	if later <= got[len(got)-1] {
		t.Fatalf("later=%s not after %s", later, got[len(got)-1])
	}
}
