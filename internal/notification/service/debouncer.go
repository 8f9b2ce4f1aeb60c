package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/matchhub/internal/notification/domain"
	obslogger "github.com/smallbiznis/matchhub/internal/observability/logger"
	"go.uber.org/zap"
)

type pendingKey struct {
	userID int64
	kind   domain.Kind
}

type pendingEntry struct {
	timer *time.Timer
}

// Debouncer collapses bursts of counter changes per (user, kind) into one
// delivery once the counter has been quiet for the configured period.
type Debouncer struct {
	svc      domain.Service
	delivery domain.Delivery
	quiet    func() time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pending map[pendingKey]*pendingEntry
	stopped bool
	wg      sync.WaitGroup
}

func NewDebouncer(svc domain.Service, delivery domain.Delivery, quiet func() time.Duration, log *zap.Logger) *Debouncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Debouncer{
		svc:      svc,
		delivery: delivery,
		quiet:    quiet,
		log:      log.Named("notification.debouncer"),
		pending:  make(map[pendingKey]*pendingEntry),
	}
}

func (d *Debouncer) Notify(userID int64, kind domain.Kind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	key := pendingKey{userID: userID, kind: kind}
	wait := d.quiet()
	if entry, ok := d.pending[key]; ok && entry.timer.Stop() {
		entry.timer.Reset(wait)
		return
	}

	entry := &pendingEntry{}
	d.wg.Add(1)
	entry.timer = time.AfterFunc(wait, func() {
		defer d.wg.Done()
		d.mu.Lock()
		if d.pending[key] == entry {
			delete(d.pending, key)
		}
		d.mu.Unlock()
		d.deliver(context.Background(), key)
	})
	d.pending[key] = entry
}

// Pending reports how many (user, kind) pairs are waiting for delivery.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop delivers whatever is still pending and waits for in-flight deliveries.
func (d *Debouncer) Stop(ctx context.Context) {
	d.mu.Lock()
	d.stopped = true
	var flush []pendingKey
	for key, entry := range d.pending {
		if entry.timer.Stop() {
			d.wg.Done()
			flush = append(flush, key)
		}
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, key := range flush {
		d.deliver(ctx, key)
	}
	d.wg.Wait()
}

func (d *Debouncer) deliver(ctx context.Context, key pendingKey) {
	log := obslogger.WithContext(ctx, d.log).With(
		zap.Int64("user_id", key.userID),
		zap.String("kind", string(key.kind)),
	)

	counter, err := d.svc.Get(ctx, key.userID, key.kind)
	if err != nil {
		log.Warn("read counter for delivery failed", zap.Error(err))
		return
	}
	if counter.UnseenCount == 0 {
		return
	}

	ref, err := d.delivery.Deliver(ctx, domain.Badge{
		UserID: key.userID,
		Kind:   key.kind,
		Count:  counter.UnseenCount,
	}, counter.LastRef)
	if err != nil {
		log.Warn("badge delivery failed", zap.Error(err))
		return
	}
	if err := d.svc.RecordDelivered(ctx, key.userID, key.kind, ref); err != nil {
		log.Warn("record delivered badge failed", zap.Error(err))
	}
}

// LogDelivery stands in for the messaging layer and only logs the badge.
type LogDelivery struct {
	log *zap.Logger
}

func NewLogDelivery(log *zap.Logger) *LogDelivery {
	return &LogDelivery{log: log.Named("notification.delivery")}
}

func (l *LogDelivery) Deliver(ctx context.Context, badge domain.Badge, previousRef string) (string, error) {
	ref := uuid.NewString()
	obslogger.WithContext(ctx, l.log).Info("notification badge",
		zap.Int64("user_id", badge.UserID),
		zap.String("kind", string(badge.Kind)),
		zap.Int64("count", badge.Count),
		zap.String("replaces", previousRef),
		zap.String("ref", ref),
	)
	return ref, nil
}
