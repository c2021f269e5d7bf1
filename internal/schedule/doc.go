// Package schedule compiles per-action user-count deltas into concurrent tasks.
//
// A load plan describes, for every action, how many users join or leave at the
// start of each interval. The executor does not work with deltas: it launches
// batches of users that run for a fixed time and are then cancelled. [Compile]
// converts the former into the latter while keeping the number of batches small.
//
// # Packing
//
// Cumulative counts are walked left to right. At interval i any users that are
// not yet covered by an earlier batch are packed into batches starting at i.
// Each batch takes the smallest uncovered count found between i and the next
// interval where nothing remains uncovered, and lasts exactly that long:
//
//	res := schedule.Compile("ActionSample", []int{5, -2, 0}, []int{10, 10, 10})
//	// res.Entries: {Start: 0, Duration: 30, Users: 3}, {Start: 0, Duration: 10, Users: 2}
//
// Negative deltas never create batches; they are served by the shorter batches
// emitted earlier. [Replay] reconstructs the active count per interval and is
// the inverse used to check a compiled schedule.
package schedule
