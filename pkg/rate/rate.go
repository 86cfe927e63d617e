package rate

// EstimateRate converts ticks counted over dtSeconds into revolutions per
// second.  dtSeconds must be the measured time since the ticks were last
// harvested, not the nominal loop period.
func EstimateRate(ticks uint32, dtSeconds float64, pulsesPerRev uint32) float64 {
	if dtSeconds <= 0 || pulsesPerRev == 0 {
		return 0
	}
	ticksPerSec := float64(ticks) / dtSeconds
	return ticksPerSec / float64(pulsesPerRev)
}
