package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mmynk/splitledger/internal/models"
)

// Emitter delivers a notification to its recipient.
type Emitter interface {
	Emit(ctx context.Context, recipient models.User, n models.Notification) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, recipient models.User, n models.Notification) error

func (f EmitterFunc) Emit(ctx context.Context, recipient models.User, n models.Notification) error {
	return f(ctx, recipient, n)
}

// LogEmitter writes notifications to a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
}

func (e LogEmitter) Emit(ctx context.Context, recipient models.User, n models.Notification) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Notification",
		"user_id", recipient.ID,
		"title", n.Title,
		"body", n.Body,
		"link", n.Link,
	)
	return nil
}

// MultiEmitter hands every notification to each emitter in turn. All are
// tried; their errors are joined.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, recipient models.User, n models.Notification) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, recipient, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
