package debug

import (
	"context"

	"github.com/tigerbot-team/tigerbot/wheelbot/pkg/config"
)

// Open builds the sink named by the config.  Remote sinks also echo to
// stdout so that the console keeps working.
func Open(ctx context.Context, cfg config.Debug) (Sink, error) {
	switch cfg.Sink {
	case "serial":
		q, err := OpenSerial(ctx, cfg.SerialPort, cfg.BaudRate, cfg.QueueDepth)
		if err != nil {
			return nil, err
		}
		return Multi{Stdout, q}, nil
	case "mqtt":
		q, err := DialMQTT(ctx, cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, cfg.QueueDepth)
		if err != nil {
			return nil, err
		}
		return Multi{Stdout, q}, nil
	case "none":
		return Discard, nil
	default:
		return Stdout, nil
	}
}
