package debug

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	pkgerrors "github.com/pkg/errors"
)

const mqttConnectTimeout = 5 * time.Second

// DialMQTT connects to broker and queues lines for publishing on topic.
// Publishes are QoS 0 and never waited on.
func DialMQTT(ctx context.Context, broker, clientID, topic string, depth int) (*Queue, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.OnConnect = func(client mqtt.Client) {
		fmt.Println("DBG: connected to MQTT broker", broker)
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		fmt.Println("DBG: MQTT connection lost:", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		fmt.Println("DBG: MQTT broker not reachable yet, will keep retrying", broker)
	} else if token.Error() != nil {
		return nil, pkgerrors.Wrapf(token.Error(), "failed to connect to MQTT broker %s", broker)
	}

	q := NewQueue(ctx, "mqtt", depth, func(line string) error {
		client.Publish(topic, 0, false, strings.TrimSuffix(line, "\n"))
		return nil
	})
	go func() {
		<-q.Done()
		client.Disconnect(250)
	}()
	return q, nil
}
