package efficiency

// Band is the coarse efficiency class shown on dashboard cards and filters.
type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// Band thresholds.
const (
	ThresholdHigh   = 90
	ThresholdMedium = 75
)

// Bands lists every band, best first.
var Bands = []Band{BandHigh, BandMedium, BandLow}

// BandOf maps an efficiency value to its band.
func BandOf(value int) Band {
	switch {
	case value >= ThresholdHigh:
		return BandHigh
	case value >= ThresholdMedium:
		return BandMedium
	default:
		return BandLow
	}
}

// ParseBand returns the Band named s and whether it is known.
func ParseBand(s string) (Band, bool) {
	switch Band(s) {
	case BandHigh, BandMedium, BandLow:
		return Band(s), true
	}
	return "", false
}
