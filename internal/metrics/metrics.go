package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	reservationCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marcador",
			Name:      "reservation_created_total",
			Help:      "Count of temporary holds created.",
		},
	)

	reservationFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marcador",
			Name:      "reservation_finalized_total",
			Help:      "Count of reservations by final transition.",
		},
		[]string{"status"},
	)

	reservationConflict = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marcador",
			Name:      "reservation_conflict_total",
			Help:      "Count of reserve attempts rejected by the admission check.",
		},
	)

	sweeperExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marcador",
			Name:      "sweeper_expired_total",
			Help:      "Count of holds reclaimed by the expiry sweeper.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(reservationCreated, reservationFinalized, reservationConflict, sweeperExpired)
	})
}

func IncReservationCreated() {
	reservationCreated.Inc()
}

func IncReservationFinalized(status string) {
	reservationFinalized.WithLabelValues(status).Inc()
}

func IncReservationConflict() {
	reservationConflict.Inc()
}

func AddSweeperExpired(n int) {
	sweeperExpired.Add(float64(n))
}
