package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/presensi/pkg/dto"
)

// CheckInHandler processes one decoded check-in. A returned error naks the
// message for redelivery.
type CheckInHandler func(ctx context.Context, ev dto.CheckInResponse) error

type Consumer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewConsumer(natsURL string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js}, nil
}

// decodeCheckIn parses a CHECKINS payload.
func decodeCheckIn(data []byte) (dto.CheckInResponse, error) {
	var ev dto.CheckInResponse
	if err := json.Unmarshal(data, &ev); err != nil {
		return dto.CheckInResponse{}, fmt.Errorf("decode check-in: %w", err)
	}
	if ev.PersonID == "" || ev.Label == "" {
		return dto.CheckInResponse{}, fmt.Errorf("decode check-in: missing person or label")
	}
	return ev, nil
}

// ConsumeCheckIns starts consuming new check-ins (for the API to broadcast
// via WebSocket). It returns once the consumer is registered.
func (c *Consumer) ConsumeCheckIns(ctx context.Context, consumerName string, handler CheckInHandler) error {
	stream, err := c.js.Stream(ctx, CheckInsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", CheckInsStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       10 * time.Second,
		MaxDeliver:    3,
		FilterSubject: CheckInsSubjectBase + ".>",
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch check-ins error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				dispatch(ctx, msg, handler)
			}
		}
	}()

	slog.Info("check-in consumer started", "consumer", consumerName)
	return nil
}

// ackable is the part of jetstream.Msg the dispatcher needs.
type ackable interface {
	Data() []byte
	Subject() string
	Ack() error
	Nak() error
	Term() error
}

func dispatch(ctx context.Context, msg ackable, handler CheckInHandler) {
	ev, err := decodeCheckIn(msg.Data())
	if err != nil {
		slog.Error("drop malformed check-in", "subject", msg.Subject(), "error", err)
		_ = msg.Term()
		return
	}
	if err := handler(ctx, ev); err != nil {
		slog.Error("process check-in error", "subject", msg.Subject(), "error", err)
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func (c *Consumer) Close() {
	c.nc.Close()
}
