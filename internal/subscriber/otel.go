package subscriber

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/openmotion/omlt/internal/subscriber"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
