package notifications

import (
	"context"
	"errors"
	"log/slog"
)

// Sender presents a command to the user (OS notification, message bus,
// connected clients). The engine never observes delivery results beyond
// logging them.
type Sender interface {
	Send(ctx context.Context, cmd Command) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, cmd Command) error

// Send calls f.
func (f SenderFunc) Send(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// LogSender only logs commands. Used when no delivery channel is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender that writes each command to logger.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the command.
func (s *LogSender) Send(ctx context.Context, cmd Command) error {
	s.logger.Info("Notification",
		"kind", cmd.Kind, "store_id", cmd.StoreID, "tag", cmd.Tag,
		"title", cmd.Title, "body", cmd.Body)
	return nil
}

// MultiSender fans a command out to every sender. Nil entries are skipped.
// All senders are attempted; their errors are joined.
type MultiSender []Sender

// Send delivers cmd to each sender.
func (m MultiSender) Send(ctx context.Context, cmd Command) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Send(ctx, cmd); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
