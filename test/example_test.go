package test

import (
	"context"
	"errors"
	"fmt"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/notify"
	"github.com/MrEthical07/goGuard/pgstore"
	"github.com/MrEthical07/goGuard/settings"
	"github.com/redis/go-redis/v9"
)

// ExampleNew demonstrates engine construction with production-style dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	db, _ := pgstore.Open("postgres://guard@localhost/forum")
	defaults, _ := settings.LoadDefaults()

	engine, _ := goGuard.New().
		WithRedis(rdb).
		WithSettings(settings.Layered{settings.NewRedis(rdb, ""), defaults.Memory()}).
		WithSubjectProvider(db).
		WithActivityStore(db).
		WithRecoveryStore(db).
		WithNotifier(notify.Log{}).
		Build()
	_ = engine
}

// ExampleEngine_Authorize shows how a reply handler consults the gate and
// persists the possibly truncated content.
func ExampleEngine_Authorize() {
	var engine *goGuard.Engine
	d, err := engine.Authorize(context.Background(), goGuard.Request{
		Action:  goGuard.ActionNewReply,
		Content: "first!",
	})
	switch {
	case err != nil:
		_ = err
	case !d.Allowed:
		fmt.Println(d.Reason, d.RetryAfter)
	default:
		_ = d.Content
	}
}

// ExampleEngine_ConsumeRecovery shows the error handling a reset form needs.
func ExampleEngine_ConsumeRecovery() {
	var engine *goGuard.Engine
	_, err := engine.ConsumeRecovery(context.Background(), "token-from-email", "new passphrase")
	switch {
	case errors.Is(err, goGuard.ErrTokenInvalid):
		// unknown, used or expired; show one message for all three
	case errors.Is(err, goGuard.ErrCredentialPolicy):
		// token still valid; let the user pick another credential
	}
}
