package debug

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Sink takes human-readable diagnostic lines.  Println must never block the
// caller; lines may be dropped if the transport can't keep up.
type Sink interface {
	Println(a ...interface{})
}

type stdout struct{}

func (stdout) Println(a ...interface{}) {
	fmt.Println(a...)
}

// Stdout writes directly to the process's standard output.
var Stdout Sink = stdout{}

type discard struct{}

func (discard) Println(a ...interface{}) {}

var Discard Sink = discard{}

// Multi fans each line out to all of its sinks.
type Multi []Sink

func (m Multi) Println(a ...interface{}) {
	for _, s := range m {
		s.Println(a...)
	}
}

// Queue formats lines on the caller's goroutine and hands them to a
// background writer through a bounded channel.  When the channel is full the
// line is counted as dropped instead of waiting.
type Queue struct {
	lines   chan string
	dropped uint64
	done    chan struct{}
}

// NewQueue starts a writer goroutine that calls write for each queued line
// until ctx is cancelled.  Write errors are reported to stdout, at most once
// per run of consecutive failures.
func NewQueue(ctx context.Context, name string, depth int, write func(line string) error) *Queue {
	if depth <= 0 {
		depth = 1
	}
	q := &Queue{
		lines: make(chan string, depth),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		failing := false
		for {
			select {
			case <-ctx.Done():
				return
			case line := <-q.lines:
				err := write(line)
				if err != nil && !failing {
					fmt.Printf("DBG: %s sink write failed: %v\n", name, err)
				}
				failing = err != nil
			}
		}
	}()
	return q
}

func (q *Queue) Println(a ...interface{}) {
	select {
	case q.lines <- fmt.Sprintln(a...):
	default:
		atomic.AddUint64(&q.dropped, 1)
	}
}

// Dropped returns the number of lines discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

// Done is closed once the writer goroutine has exited.
func (q *Queue) Done() <-chan struct{} {
	return q.done
}
