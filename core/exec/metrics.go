package exec

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	txsExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parex_exec_transactions_total",
		Help: "Transaction attempts executed, including aborted speculation",
	})
	txsCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parex_exec_commits_total",
		Help: "Transactions committed",
	})
	txsAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parex_exec_aborts_total",
		Help: "Transaction attempts aborted and requeued",
	})
	txsValidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parex_exec_validations_total",
		Help: "Read-set validations performed",
	})
	wavesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "parex_exec_waves_total",
		Help: "Optimistic waves dispatched",
	})
)
