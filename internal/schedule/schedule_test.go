package schedule

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestCompileRampThenRemove(t *testing.T) {
	res := Compile("A", []int{5, -2, 0}, []int{10, 10, 10})
	if res.Duration != 30 {
		t.Fatalf("duration = %d", res.Duration)
	}
	want := []Entry{
		{Start: 0, Duration: 30, Users: 3, Action: "A"},
		{Start: 0, Duration: 10, Users: 2, Action: "A"},
	}
	if !reflect.DeepEqual(res.Entries, want) {
		t.Fatalf("entries = %+v, want %+v", res.Entries, want)
	}
}

func TestCompileUsesIntervalLengthsFromStart(t *testing.T) {
	res := Compile("A", []int{5, -2, 0}, []int{5, 10, 10})
	want := []Entry{
		{Start: 0, Duration: 25, Users: 3, Action: "A"},
		{Start: 0, Duration: 5, Users: 2, Action: "A"},
	}
	if !reflect.DeepEqual(res.Entries, want) {
		t.Fatalf("entries = %+v, want %+v", res.Entries, want)
	}
}

func TestCompileAllZeroIsEmpty(t *testing.T) {
	res := Compile("A", []int{0, 0, 0}, []int{1, 2, 3})
	if len(res.Entries) != 0 {
		t.Fatalf("expected no entries, got %+v", res.Entries)
	}
	if res.Duration != 6 {
		t.Fatalf("duration = %d", res.Duration)
	}
}

func TestCompileLateStartAndGap(t *testing.T) {
	res := Compile("B", []int{0, 4, -4, 2}, []int{10, 10, 10, 10})
	want := []Entry{
		{Start: 10, Duration: 10, Users: 4, Action: "B"},
		{Start: 30, Duration: 10, Users: 2, Action: "B"},
	}
	if !reflect.DeepEqual(res.Entries, want) {
		t.Fatalf("entries = %+v, want %+v", res.Entries, want)
	}
}

func TestCompileValleyMergesLongBatch(t *testing.T) {
	// 5 -> 3 -> 5: three users stay for the whole run, two leave and two others join.
	res := Compile("C", []int{5, -2, 2}, []int{10, 10, 10})
	want := []Entry{
		{Start: 0, Duration: 30, Users: 3, Action: "C"},
		{Start: 0, Duration: 10, Users: 2, Action: "C"},
		{Start: 20, Duration: 10, Users: 2, Action: "C"},
	}
	if !reflect.DeepEqual(res.Entries, want) {
		t.Fatalf("entries = %+v, want %+v", res.Entries, want)
	}
}

func TestCompileReplayMatchesCumulativeCounts(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		n := 1 + rnd.Intn(8)
		deltas := make([]int, n)
		intervals := make([]int, n)
		active := 0
		for i := 0; i < n; i++ {
			intervals[i] = 1 + rnd.Intn(30)
			d := rnd.Intn(21) - 10
			if active+d < 0 {
				d = -active
			}
			active += d
			deltas[i] = d
		}

		res := Compile("R", deltas, intervals)
		got := Replay(res.Entries, intervals)
		want := Cumulative(deltas)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("deltas=%v intervals=%v: replay=%v want=%v (entries %+v)", deltas, intervals, got, want, res.Entries)
		}
		for _, e := range res.Entries {
			if e.Users <= 0 || e.Duration <= 0 {
				t.Fatalf("degenerate entry %+v for deltas=%v", e, deltas)
			}
		}
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	deltas := []int{7, -3, 4, -8, 6}
	intervals := []int{3, 5, 7, 11, 13}
	first := Compile("D", deltas, intervals)
	for i := 0; i < 10; i++ {
		again := Compile("D", deltas, intervals)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs:\n%+v\n%+v", i, first, again)
		}
	}
}

func TestCompileDescription(t *testing.T) {
	res := Compile("A", []int{5, -2}, []int{10, 10})
	want := "#A:\n" +
		"0-th second: need 5 more user(s) doing A:\n" +
		"\t- scheduling 3 user(s) to act for 20 seconds\n" +
		"\t- scheduling 2 user(s) to act for 10 seconds\n" +
		"10-th second: stopping 2 user(s) doing A\n"
	if res.Description != want {
		t.Fatalf("description:\n%q\nwant:\n%q", res.Description, want)
	}
}

func TestPeak(t *testing.T) {
	cases := []struct {
		deltas []int
		want   int
	}{
		{nil, 0},
		{[]int{0, 0}, 0},
		{[]int{5, -2, 4}, 7},
		{[]int{3, -3, 2}, 3},
	}
	for _, tc := range cases {
		if got := Peak(tc.deltas); got != tc.want {
			t.Fatalf("Peak(%v) = %d, want %d", tc.deltas, got, tc.want)
		}
	}
}
