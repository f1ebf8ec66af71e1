package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/presensi/internal/models"
	"github.com/your-org/presensi/pkg/dto"
)

const (
	CheckInsStreamName  = "CHECKINS"
	CheckInsSubjectBase = "checkins"
)

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

// Producer publishes committed check-ins.
type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js}, nil
}

func checkInStreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        CheckInsStreamName,
		Subjects:    []string{CheckInsSubjectBase + ".>"},
		Retention:   jetstream.InterestPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     1000000,
		Storage:     jetstream.FileStorage,
		Duplicates:  2 * time.Minute,
		Description: "Committed attendance check-ins",
	}
}

// EnsureStreams creates the JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := []jetstream.StreamConfig{checkInStreamConfig()}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// CheckInSubject is the subject a record is published on.
func CheckInSubject(label models.SessionLabel) string {
	return fmt.Sprintf("%s.%s", CheckInsSubjectBase, label)
}

// PublishCheckIn publishes a committed record. The record id is used as the
// message id so a retried publish is deduplicated by the stream.
func (p *Producer) PublishCheckIn(ctx context.Context, rec models.CheckInRecord) error {
	payload, err := json.Marshal(dto.NewCheckInResponse(rec))
	if err != nil {
		return fmt.Errorf("marshal check-in: %w", err)
	}

	_, err = p.js.Publish(ctx, CheckInSubject(rec.Label), payload, jetstream.WithMsgID(rec.ID.String()))
	if err != nil {
		return fmt.Errorf("publish check-in: %w", err)
	}
	return nil
}

// Pending returns the number of messages held by the CHECKINS stream.
func (p *Producer) Pending(ctx context.Context) (uint64, error) {
	stream, err := p.js.Stream(ctx, CheckInsStreamName)
	if err != nil {
		return 0, err
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return info.State.Msgs, nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}
