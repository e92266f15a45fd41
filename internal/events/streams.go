package events

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const (
	ordersStream    = "ORDERS"
	inventoryStream = "INVENTORY"
)

// EnsureStreams creates (or validates) the two streams the saga rides on:
// - orders.>
// - inventory.>
func EnsureStreams(js nats.JetStreamContext) error {
	for _, cfg := range []*nats.StreamConfig{
		{
			Name:      ordersStream,
			Subjects:  []string{"orders.>"},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			Replicas:  1,
		},
		{
			Name:      inventoryStream,
			Subjects:  []string{"inventory.>"},
			Retention: nats.LimitsPolicy,
			Storage:   nats.FileStorage,
			Replicas:  1,
		},
	} {
		if _, err := js.StreamInfo(cfg.Name); err != nil {
			if !errors.Is(err, nats.ErrStreamNotFound) {
				return err
			}
			if _, addErr := js.AddStream(cfg); addErr != nil {
				return addErr
			}
		}
	}
	return nil
}
