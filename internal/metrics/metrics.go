// Package metrics tracks pipeline counters exposed on the ops endpoints.
package metrics

import "sync/atomic"

var (
	runsStarted     int64
	runsSucceeded   int64
	runsFailed      int64
	fetchFailures   int64
	reportsFetched  int64
	signalsDetected int64
)

func IncStarted()     { atomic.AddInt64(&runsStarted, 1) }
func IncSucceeded()   { atomic.AddInt64(&runsSucceeded, 1) }
func IncFailed()      { atomic.AddInt64(&runsFailed, 1) }
func IncFetchFailed() { atomic.AddInt64(&fetchFailures, 1) }

func AddReportsFetched(n int) { atomic.AddInt64(&reportsFetched, int64(n)) }
func AddSignals(n int)        { atomic.AddInt64(&signalsDetected, int64(n)) }

func Snapshot() map[string]int64 {
	return map[string]int64{
		"runs_started":     atomic.LoadInt64(&runsStarted),
		"runs_succeeded":   atomic.LoadInt64(&runsSucceeded),
		"runs_failed":      atomic.LoadInt64(&runsFailed),
		"fetch_failures":   atomic.LoadInt64(&fetchFailures),
		"reports_fetched":  atomic.LoadInt64(&reportsFetched),
		"signals_detected": atomic.LoadInt64(&signalsDetected),
	}
}
