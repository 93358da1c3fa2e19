package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reservations_total",
		Help: "Reservation outcomes by terminal state.",
	}, []string{"outcome"}) // created, released, fulfilled

	StockRefusalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_insufficient_stock_total",
		Help: "Business refusals due to insufficient stock.",
	})

	IntegrityFaultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_integrity_faults_total",
		Help: "Ledger/batch mismatches detected at mutating boundaries.",
	})

	DosesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_doses_recorded_total",
		Help: "Doses drawn from multi-dose containers.",
	})

	QuarantinesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_quarantines_total",
		Help: "Containers forced into quarantine by cold-chain readings.",
	})

	SweepReclassifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_sweep_reclassified_total",
		Help: "Entities reclassified by the expiration sweep.",
	}, []string{"entity"}) // batch, container, reservation
)
