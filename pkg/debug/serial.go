package debug

import (
	"context"
	"io"

	pkgerrors "github.com/pkg/errors"
	"go.bug.st/serial"
)

// NewWriter queues lines for w.
func NewWriter(ctx context.Context, name string, w io.Writer, depth int) *Queue {
	return NewQueue(ctx, name, depth, func(line string) error {
		_, err := io.WriteString(w, line)
		return err
	})
}

// OpenSerial opens a UART and queues lines for it.  The port is closed when
// ctx is cancelled.
func OpenSerial(ctx context.Context, device string, baud int, depth int) (*Queue, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open serial port %s", device)
	}
	q := NewWriter(ctx, "serial", port, depth)
	go func() {
		<-q.Done()
		_ = port.Close()
	}()
	return q, nil
}
