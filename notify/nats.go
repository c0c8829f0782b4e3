package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is where recovery notices are published unless configured.
const DefaultSubject = "goguard.recovery.notice"

// ErrNilPublisher is returned by NewNATS when no publisher is supplied.
var ErrNilPublisher = errors.New("notify: nil publisher")

// Config holds NATS connection settings.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string `env:"GUARD_NATS_URL" envDefault:"nats://127.0.0.1:4222"`

	// Name identifies the connection on the server.
	Name string `env:"GUARD_NATS_NAME" envDefault:"goguard"`

	// Subject receives one JSON message per issued token.
	Subject string `env:"GUARD_NATS_SUBJECT" envDefault:"goguard.recovery.notice"`

	// MaxReconnects is the reconnection budget. Use -1 for infinite reconnects.
	MaxReconnects int           `env:"GUARD_NATS_MAX_RECONNECTS" envDefault:"-1"`
	ReconnectWait time.Duration `env:"GUARD_NATS_RECONNECT_WAIT" envDefault:"2s"`
	Timeout       time.Duration `env:"GUARD_NATS_TIMEOUT" envDefault:"5s"`

	Username string `env:"GUARD_NATS_USER"`
	Password string `env:"GUARD_NATS_PASSWORD"`
	Token    string `env:"GUARD_NATS_TOKEN"`
}

// DefaultConfig returns a Config pointed at a local server.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "goguard",
		Subject:       DefaultSubject,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// Connect dials NATS with cfg. Connection state changes are logged to logger.
func Connect(cfg Config, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	}
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return conn, nil
}

// Publisher is the subset of *nats.Conn used by NATS.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// NATS publishes each RecoveryNotice as JSON on a fixed subject. A relay
// service subscribed there renders and sends the email.
type NATS struct {
	pub     Publisher
	subject string
}

// NewNATS returns a notifier publishing on subject, or DefaultSubject when
// subject is empty.
func NewNATS(pub Publisher, subject string) (*NATS, error) {
	if pub == nil {
		return nil, ErrNilPublisher
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{pub: pub, subject: subject}, nil
}

// Send implements goGuard.Notifier.
func (n *NATS) Send(ctx context.Context, notice goGuard.RecoveryNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	msg := &nats.Msg{
		Subject: n.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set("Goguard-Subject-Id", notice.SubjectID)
	if err := n.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

var _ goGuard.Notifier = (*NATS)(nil)
