package tunable

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// Tunable is a gain that can be nudged up and down by a fixed step while the
// robot is running.
type Tunable struct {
	Name string
	Step float64

	bits uint64

	onChange func(v float64)
}

func (t *Tunable) Get() float64 {
	return math.Float64frombits(atomic.LoadUint64(&t.bits))
}

func (t *Tunable) Set(v float64) {
	atomic.StoreUint64(&t.bits, math.Float64bits(v))
	fmt.Println("Tunable", t.Name, "=", v)
	if t.onChange != nil {
		t.onChange(v)
	}
}

// Add moves the value by steps multiples of Step, never below zero.
func (t *Tunable) Add(steps int) {
	v := t.Get() + float64(steps)*t.Step
	if v < 0 {
		v = 0
	}
	t.Set(v)
}

type Tunables struct {
	lock     sync.Mutex
	All      []*Tunable
	selected int
}

// Create registers a tunable.  onChange is called with each new value.
func (t *Tunables) Create(name string, value, step float64, onChange func(v float64)) *Tunable {
	newTunable := &Tunable{
		Name:     name,
		Step:     step,
		bits:     math.Float64bits(value),
		onChange: onChange,
	}
	t.lock.Lock()
	t.All = append(t.All, newTunable)
	t.lock.Unlock()
	return newTunable
}

func (t *Tunables) SelectNext() *Tunable {
	t.lock.Lock()
	t.selected++
	if t.selected >= len(t.All) {
		t.selected = 0
	}
	t.lock.Unlock()
	cur := t.Current()
	fmt.Println("Tunable", cur.Name, "selected, value:", cur.Get())
	return cur
}

func (t *Tunables) SelectPrev() *Tunable {
	t.lock.Lock()
	t.selected--
	if t.selected < 0 {
		t.selected = len(t.All) - 1
	}
	t.lock.Unlock()
	cur := t.Current()
	fmt.Println("Tunable", cur.Name, "selected, value:", cur.Get())
	return cur
}

func (t *Tunables) Current() *Tunable {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.All[t.selected]
}

func (t *Tunables) ByName(name string) *Tunable {
	t.lock.Lock()
	defer t.lock.Unlock()
	for _, tn := range t.All {
		if tn.Name == name {
			return tn
		}
	}
	return nil
}
