package decode

import (
	"time"

	"telemetry-pipeline/internal/domain/otlp"
)

// timeFromUnixNano converts an OTLP unix-nano timestamp (string, int, or
// float per spec §9's safeInt/safeFloat contract) into a UTC time.Time,
// returning the zero time if the field is absent or unparsable.
func timeFromUnixNano(v any) time.Time {
	nanos, ok := otlp.SafeInt(v)
	if !ok || nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}
