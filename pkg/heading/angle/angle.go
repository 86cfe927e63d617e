package angle

import "math"

// PlusMinus180 is a heading in degrees, always held in (-180, 180].
type PlusMinus180 struct {
	float64
}

// Wrap folds any angle in degrees into (-180, 180].
func Wrap(f float64) float64 {
	d := math.Mod(f, 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return d
}

func FromFloat(f float64) PlusMinus180 {
	return PlusMinus180{Wrap(f)}
}

// Float returns the angle in degrees, range (-180, 180].
func (a PlusMinus180) Float() float64 {
	return a.float64
}

func (a PlusMinus180) AddFloat(f float64) PlusMinus180 {
	return FromFloat(a.float64 + f)
}

// Sub returns the shortest signed rotation from b to a.
func (a PlusMinus180) Sub(b PlusMinus180) PlusMinus180 {
	return FromFloat(a.float64 - b.float64)
}

// Integrate advances the angle by rateDPS degrees/sec for dtSec.
func (a PlusMinus180) Integrate(rateDPS, dtSec float64) PlusMinus180 {
	return a.AddFloat(rateDPS * dtSec)
}
