package api

import "github.com/soaringjerry/synapirt/internal/services"

// Store is everything the HTTP layer needs from persistence.
type Store interface {
	services.ScaleWriter
	services.CalibrationStore
	services.AnalystStore
}
