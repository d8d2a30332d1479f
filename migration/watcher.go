package migration

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cygirat-cmd/kiki-server/cache"
	"go.uber.org/zap"
)

// AuthChannel carries sign-in events from the auth layer to the
// migration watcher.
const AuthChannel = "auth:signin"

// AuthEvent is published on every successful sign-in.
type AuthEvent struct {
	DeviceID  string `json:"device_id"`
	AccountID int64  `json:"account_id"`
}

// PublishSignIn announces a sign-in on the auth channel.
func PublishSignIn(ctx context.Context, ps cache.PubSub, ev AuthEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ps.Publish(ctx, AuthChannel, string(raw))
}

// Watcher listens for sign-in events and triggers migration. This is
// the second integration point besides the explicit migration
// endpoint; ShouldMigrate and the coordinator lock make the overlap
// harmless.
type Watcher struct {
	coord  *Coordinator
	ps     cache.PubSub
	logger *zap.Logger
	cancel func()
}

// NewWatcher creates a Watcher; call Start to begin listening.
func NewWatcher(coord *Coordinator, ps cache.PubSub, logger *zap.Logger) *Watcher {
	return &Watcher{coord: coord, ps: ps, logger: logger}
}

// Start subscribes to the auth channel and processes events until Stop
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	ch, cancel, err := w.ps.Subscribe(ctx, AuthChannel)
	if err != nil {
		return err
	}
	w.cancel = cancel
	go func() {
		for msg := range ch {
			w.handle(ctx, msg.Payload)
		}
	}()
	return nil
}

// Stop unsubscribes the watcher.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
}

func (w *Watcher) handle(ctx context.Context, payload string) {
	var ev AuthEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		w.logger.Warn("malformed auth event", zap.Error(err))
		return
	}
	if ev.DeviceID == "" || ev.AccountID == 0 {
		return
	}
	should, err := w.coord.ShouldMigrate(ctx, ev.DeviceID)
	if err != nil {
		w.logger.Warn("shouldMigrate check failed",
			zap.String("device_id", ev.DeviceID), zap.Error(err))
		return
	}
	if !should {
		return
	}
	report, err := w.coord.Run(ctx, ev.DeviceID, ev.AccountID)
	if errors.Is(err, ErrInProgress) {
		// Another trigger beat us to it; the other run owns the report.
		return
	}
	if err != nil {
		w.logger.Error("migration run failed",
			zap.String("device_id", ev.DeviceID),
			zap.Int64("account_id", ev.AccountID),
			zap.Error(err))
		return
	}
	w.logger.Info("migration triggered by sign-in",
		zap.String("device_id", ev.DeviceID),
		zap.Int64("account_id", ev.AccountID),
		zap.Int("items_added", report.ItemsAdded),
		zap.Int("errors", len(report.Errors)))
}
