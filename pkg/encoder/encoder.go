package encoder

import (
	"math"
	"sync"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/clock"
)

// Channel captures debounced ticks from a single wheel encoder.
//
// OnEdge is the only writer; it is meant to be called from the goroutine
// watching the encoder pin.  Everyone else goes through Harvest and Total.
type Channel struct {
	Name string

	clock         clock.Clock
	minIntervalMs uint32

	// Guards the counters only.  Held for the read-modify-write, never for I/O.
	lock          sync.Mutex
	intervalTicks uint32
	totalTicks    uint32

	// Edge detector state, owned by the edge goroutine.
	lastPinHigh bool
	lastEdgeMs  uint32
}

func NewChannel(name string, clk clock.Clock, minIntervalMs uint32) *Channel {
	return &Channel{
		Name:          name,
		clock:         clk,
		minIntervalMs: minIntervalMs,
		lastPinHigh:   true,
		lastEdgeMs:    clk.Now(),
	}
}

// Reset zeroes the counters and re-primes the edge detector with the current
// pin level.  Must not race with OnEdge.
func (c *Channel) Reset(pinHigh bool) {
	c.lastPinHigh = pinHigh
	c.lastEdgeMs = c.clock.Now()

	c.lock.Lock()
	c.intervalTicks = 0
	c.totalTicks = 0
	c.lock.Unlock()
}

// OnEdge handles one logic transition of the encoder pin.  Only a HIGH->LOW
// transition more than minIntervalMs after the last accepted tick counts.
func (c *Channel) OnEdge(pinHigh bool) {
	falling := c.lastPinHigh && !pinHigh
	c.lastPinHigh = pinHigh
	if !falling {
		return
	}

	now := c.clock.Now()
	if clock.Elapsed(now, c.lastEdgeMs) <= c.minIntervalMs {
		return
	}
	c.lastEdgeMs = now

	c.lock.Lock()
	c.intervalTicks++
	c.totalTicks++
	c.lock.Unlock()
}

// Harvest returns the ticks seen since the previous harvest and clears the
// interval counter.
func (c *Channel) Harvest() uint32 {
	c.lock.Lock()
	t := c.intervalTicks
	c.intervalTicks = 0
	c.lock.Unlock()
	return t
}

// Total returns the lifetime tick count.
func (c *Channel) Total() uint32 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.totalTicks
}

// Geometry converts ticks to distance.
type Geometry struct {
	PulsesPerRev    uint32
	WheelDiameterMM float64
	// SlipFactor scales the nominal circumference to the measured distance
	// per revolution.
	SlipFactor float64
}

func (g Geometry) CircumferenceMM() float64 {
	return math.Pi * g.WheelDiameterMM
}

func (g Geometry) MMPerTick() float64 {
	if g.PulsesPerRev == 0 {
		return 0
	}
	slip := g.SlipFactor
	if slip == 0 {
		slip = 1
	}
	return g.CircumferenceMM() / float64(g.PulsesPerRev) * slip
}

// Pair is the left/right encoder set used by the rest of the robot.
type Pair struct {
	Left, Right *Channel
	Geometry    Geometry
}

func NewPair(clk clock.Clock, minIntervalMs uint32, geom Geometry) *Pair {
	return &Pair{
		Left:     NewChannel("left", clk, minIntervalMs),
		Right:    NewChannel("right", clk, minIntervalMs),
		Geometry: geom,
	}
}

// Init zeroes both channels, priming them with the current pin levels.
func (p *Pair) Init(leftHigh, rightHigh bool) {
	p.Left.Reset(leftHigh)
	p.Right.Reset(rightHigh)
}

func (p *Pair) GetAndResetTicks() (left, right uint32) {
	return p.Left.Harvest(), p.Right.Harvest()
}

func (p *Pair) TotalLeft() uint32 {
	return p.Left.Total()
}

func (p *Pair) TotalRight() uint32 {
	return p.Right.Total()
}

func (p *Pair) PulsesPerRev() uint32 {
	return p.Geometry.PulsesPerRev
}

func (p *Pair) TicksToMM(ticks uint32) float64 {
	return float64(ticks) * p.Geometry.MMPerTick()
}

func (p *Pair) TicksToMeters(ticks uint32) float64 {
	return p.TicksToMM(ticks) / 1000.0
}
