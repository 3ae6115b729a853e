// Package notify fans status text out to the configured channels. Delivery
// is best-effort: a failing channel is logged and never affects the others
// or the caller.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Channel is a single notification destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Notifier is what the trading code depends on.
type Notifier interface {
	Send(ctx context.Context, text string)
}

const sendTimeout = 15 * time.Second

// Dispatcher sends every message to all channels concurrently.
type Dispatcher struct {
	channels []Channel
	logger   *zap.Logger
	wg       sync.WaitGroup
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher over channels.
func NewDispatcher(logger *zap.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		logger:   logger.Named("notify"),
	}
}

// Add registers another channel. It must be called before the first Send.
func (d *Dispatcher) Add(ch Channel) {
	d.channels = append(d.channels, ch)
}

// Send returns immediately; each channel delivers on its own goroutine.
// Cancelling ctx does not abort deliveries already started.
func (d *Dispatcher) Send(ctx context.Context, text string) {
	base := context.WithoutCancel(ctx)
	for _, ch := range d.channels {
		d.wg.Add(1)
		go func(ch Channel) {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("Notification channel panicked", zap.String("channel", ch.Name()), zap.Any("panic", r))
				}
			}()

			sendCtx, cancel := context.WithTimeout(base, sendTimeout)
			defer cancel()
			if err := ch.Send(sendCtx, text); err != nil {
				d.logger.Warn("Notification failed", zap.String("channel", ch.Name()), zap.Error(err))
			}
		}(ch)
	}
}

// Sendf formats and sends.
func (d *Dispatcher) Sendf(ctx context.Context, format string, args ...any) {
	d.Send(ctx, fmt.Sprintf(format, args...))
}

// Wait blocks until all in-flight deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// LogChannel writes notifications to the application log.
type LogChannel struct {
	logger *zap.Logger
}

// NewLogChannel creates a channel backed by logger.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	return &LogChannel{logger: logger.Named("notification")}
}

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Send(ctx context.Context, text string) error {
	l.logger.Info(text)
	return nil
}
