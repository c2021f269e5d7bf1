// Package httpclient builds the HTTP client and requests used by actions.
//
// [NewClient] returns a client whose idle pool is sized for the action's
// concurrency cap so that users keep their connections between iterations:
//
//	client := httpclient.NewClient(30*time.Second, 1000)
//
// [Headers] validates configured headers once at startup and [NewRequest]
// overlays per-call headers on top of them.
package httpclient
