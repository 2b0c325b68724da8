package models

// Unit codes as used by Grafana axis formats
const (
	UnitPercentUnit = "percentunit"
	UnitPercent     = "percent"
	UnitSeconds     = "s"
	UnitMillis      = "ms"
	UnitMicros      = "µs"
	UnitNanos       = "ns"
	UnitShort       = "short"
	UnitNone        = "none"
	UnitBytes       = "bytes"
	UnitBytesPerSec = "Bps"
	UnitReqPerSec   = "reqps"
	UnitOpsPerSec   = "ops"
)

var displayUnits = map[string]string{
	UnitPercentUnit: "%",
	UnitPercent:     "%",
	UnitSeconds:     "s",
	UnitMillis:      "ms",
	UnitMicros:      "µs",
	UnitNanos:       "ns",
	UnitShort:       "",
	UnitNone:        "",
	UnitBytes:       "B",
	UnitBytesPerSec: "B/s",
	UnitReqPerSec:   "req/s",
	UnitOpsPerSec:   "ops/s",
	"":              "",
}

// DisplayUnit returns the human readable unit for an axis format code
func DisplayUnit(code string) string {
	if u, ok := displayUnits[code]; ok {
		return u
	}
	return code
}
