package metrics

import "expvar"

var (
	Polls           = expvar.NewInt("polls")
	FetchFailures   = expvar.NewInt("fetch_failures")
	Observations    = expvar.NewInt("observations")
	AlertsFired     = expvar.NewInt("alerts_fired")
	PersistFailures = expvar.NewInt("persist_failures")
	HistoryLen      = expvar.NewInt("history_len")
)
