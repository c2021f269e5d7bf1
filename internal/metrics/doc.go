// Package metrics collects in-process request statistics for one action.
//
// A [Collector] receives every finished request of an action process
// alongside the ledger write:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//	collector.Record(latency, code, reason)
//	stats := collector.Stats(collector.Elapsed())
//
// Latencies go into an HDR histogram for percentiles. Codes other than 200
// count as failures and their reasons are tallied. The collector also tracks
// how many user loops are running and the peak reached.
package metrics
