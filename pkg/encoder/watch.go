package encoder

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"periph.io/x/periph/conn/gpio"
)

// edgePollTimeout bounds how long Watch can go without noticing cancellation.
const edgePollTimeout = 100 * time.Millisecond

// Watch configures pin as a pulled-up input interrupting on both edges and
// feeds every edge to ch until ctx is done.
func Watch(ctx context.Context, pin gpio.PinIn, ch *Channel) error {
	if err := pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
		return errors.Wrapf(err, "failed to configure %s encoder pin %s", ch.Name, pin)
	}
	fmt.Printf("ENC: watching %s encoder on %s\n", ch.Name, pin)
	for ctx.Err() == nil {
		if !pin.WaitForEdge(edgePollTimeout) {
			continue
		}
		ch.OnEdge(pin.Read() == gpio.High)
	}
	return ctx.Err()
}
