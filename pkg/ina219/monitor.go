package ina219

import (
	"context"
	"fmt"
	"time"
)

// Monitor reports the battery rail every interval and warns once each time
// the bus voltage falls below lowVolts.
func Monitor(ctx context.Context, sensor Interface, interval time.Duration, lowVolts float64, report func(line string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	low := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		r, err := sensor.Read()
		if err != nil {
			fmt.Println("PWR: failed to read power sensor:", err)
			continue
		}
		report("PWR: battery " + r.String())
		if r.BusVolts < lowVolts && !low {
			report(fmt.Sprintf("PWR: battery LOW (%.2fV < %.2fV)", r.BusVolts, lowVolts))
		}
		low = r.BusVolts < lowVolts
	}
}
