package sound

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

type Event string

const (
	Startup  Event = "startup"
	MoveDone Event = "done"
	Fault    Event = "fault"
)

// Player announces robot events.  Play must not block.
type Player interface {
	Play(e Event)
}

type Silent struct{}

func (Silent) Play(e Event) {}

// Speaker plays <dir>/<event>.wav through the default audio device.
type Speaker struct {
	dir          string
	soundsToPlay chan string
}

func NewSpeaker(dir string) *Speaker {
	return &Speaker{
		dir:          dir,
		soundsToPlay: initSound(),
	}
}

func (s *Speaker) Path(e Event) string {
	return filepath.Join(s.dir, string(e)+".wav")
}

func (s *Speaker) Play(e Event) {
	defer func() {
		recover() // Don't die if the channel is already closed.
	}()
	path := s.Path(e)
	select {
	case s.soundsToPlay <- path:
	case <-time.After(10 * time.Millisecond):
		fmt.Println("SND: timed out trying to play", path)
	}
}

func (s *Speaker) Close() {
	close(s.soundsToPlay)
}

func initSound() chan string {
	soundsToPlay := make(chan string)
	go func() {
		defer func() {
			recover()
			for s := range soundsToPlay {
				fmt.Println("SND: unable to play", s)
			}
		}()
		sampleRate := beep.SampleRate(44100)
		err := speaker.Init(sampleRate, sampleRate.N(time.Second/5))
		if err != nil {
			fmt.Println("SND: failed to open speaker", err)
			for s := range soundsToPlay {
				fmt.Println("SND: unable to play", s)
			}
			return
		}
		var ctrl *beep.Ctrl
		var s beep.StreamSeekCloser
		for soundToPlay := range soundsToPlay {
			if ctrl != nil {
				speaker.Lock()
				ctrl.Paused = true
				ctrl.Streamer = nil
				speaker.Unlock()
				ctrl = nil
			}
			if s != nil {
				s.Close()
				s = nil
			}

			f, err := os.Open(soundToPlay)
			if err != nil {
				fmt.Println("SND: failed to open sound", err)
				continue
			}
			s, _, err = wav.Decode(f)
			if err != nil {
				fmt.Println("SND: failed to decode sound", err)
				f.Close()
				continue
			}
			ctrl = &beep.Ctrl{Streamer: s}
			speaker.Play(ctrl)
		}
	}()
	return soundsToPlay
}
