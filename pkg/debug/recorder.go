package debug

import (
	"fmt"
	"strings"
	"sync"
)

// Recorder keeps every line in memory.  Used by tests and the console.
type Recorder struct {
	lock  sync.Mutex
	lines []string
}

func (r *Recorder) Println(a ...interface{}) {
	line := strings.TrimSuffix(fmt.Sprintln(a...), "\n")
	r.lock.Lock()
	r.lines = append(r.lines, line)
	r.lock.Unlock()
}

func (r *Recorder) Lines() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any recorded line contains s.
func (r *Recorder) Contains(s string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, s) {
			return true
		}
	}
	return false
}
