package notify

import (
	"context"
	"log/slog"

	goGuard "github.com/MrEthical07/goGuard"
)

// Log writes notices to a logger. The token itself is only logged when
// IncludeToken is set, which is meant for local development.
type Log struct {
	Logger       *slog.Logger
	IncludeToken bool
}

// Send implements goGuard.Notifier.
func (l Log) Send(ctx context.Context, notice goGuard.RecoveryNotice) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []slog.Attr{
		slog.String("subject_id", notice.SubjectID),
		slog.String("username", notice.Username),
		slog.Time("expires_at", notice.ExpiresAt),
	}
	if l.IncludeToken {
		attrs = append(attrs, slog.String("token", notice.Token))
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "recovery notice", attrs...)
	return nil
}
