// Package crowd replays a compiled schedule as concurrently running synthetic
// users.
//
// Every schedule entry becomes a batch: at the entry's start offset the
// executor draws that many ids from the worker's user range and runs one loop
// per id, each repeating the action with no pause. The batch is cancelled at
// the entry's end offset and its ids go back to the pool. A weighted
// semaphore bounds how many user loops run at once.
//
//	exec := crowd.New(crowd.Options{Action: "ActionSample", Grace: 5 * time.Second})
//	report := exec.Run(ctx, result, users, session.Iteration(act))
package crowd
