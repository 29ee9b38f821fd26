package payments

import (
	"context"
	"sync"
	"time"

	"github.com/wirebustech/wyoiwyget/internal/app/domain/payment"
	"github.com/wirebustech/wyoiwyget/internal/app/metrics"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/internal/app/system"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// pendingExpiry is how long a payment may sit pending before the reconciler
// writes it off as expired.
const pendingExpiry = 24 * time.Hour

// Reconciler resolves pending payments whose webhook never arrived by
// polling the provider directly.
type Reconciler struct {
	store    storage.PaymentStore
	service  *Service
	interval time.Duration
	log      *logger.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
}

var _ system.Service = (*Reconciler)(nil)

// NewReconciler constructs a reconciler polling every 30 seconds.
func NewReconciler(store storage.PaymentStore, service *Service, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.NewDefault("payment-reconciler")
	}
	return &Reconciler{
		store:       store,
		service:     service,
		interval:    30 * time.Second,
		log:         log,
		nextAttempt: make(map[string]time.Time),
	}
}

// Name implements system.Service.
func (r *Reconciler) Name() string { return "payment-reconciler" }

// Start launches the polling loop.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.tick(runCtx)
			}
		}
	}()

	r.log.Info("payment reconciler started")
	return nil
}

// Stop halts the loop and waits for an in-flight tick.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (r *Reconciler) tick(ctx context.Context) {
	pending, err := r.store.ListPendingPayments(ctx)
	if err != nil {
		r.log.WithError(err).Warn("list pending payments failed")
		return
	}

	r.pruneSchedules(pending)

	now := time.Now()
	for _, p := range pending {
		if !r.shouldAttempt(p.ID, now) {
			continue
		}
		if err := r.reconcile(ctx, p, now); err != nil {
			r.log.WithError(err).Warnf("reconcile payment %s", p.ID)
			r.scheduleNext(p.ID, 0)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, p payment.Payment, now time.Time) error {
	gw, ok := r.service.gateways[p.Provider]
	if !ok {
		r.log.Warnf("no gateway for provider %s; cannot reconcile payment %s", p.Provider, p.ID)
		r.scheduleNext(p.ID, time.Hour)
		return nil
	}

	intent, err := gw.GetIntent(ctx, p.IntentID)
	if err != nil {
		return err
	}

	switch intent.Status {
	case payment.StatusSucceeded, payment.StatusFailed:
		if err := r.service.resolve(ctx, p, intent.Status, intent.FailureReason); err != nil {
			return err
		}
		metrics.RecordReconciliation(p.Provider, intent.Status)
		r.log.Infof("payment %s reconciled as %s", p.ID, intent.Status)
		r.clearSchedule(p.ID)
	default:
		if now.Sub(p.CreatedAt) > pendingExpiry {
			if err := r.service.resolve(ctx, p, payment.StatusExpired, "no confirmation within 24h"); err != nil {
				return err
			}
			metrics.RecordReconciliation(p.Provider, payment.StatusExpired)
			r.log.Infof("payment %s expired", p.ID)
			r.clearSchedule(p.ID)
			return nil
		}
		r.scheduleNext(p.ID, 0)
	}
	return nil
}

func (r *Reconciler) shouldAttempt(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, ok := r.nextAttempt[id]
	return !ok || now.After(next)
}

func (r *Reconciler) scheduleNext(id string, after time.Duration) {
	if after <= 0 {
		after = r.interval
	}
	r.mu.Lock()
	r.nextAttempt[id] = time.Now().Add(after)
	r.mu.Unlock()
}

func (r *Reconciler) clearSchedule(id string) {
	r.mu.Lock()
	delete(r.nextAttempt, id)
	r.mu.Unlock()
}

// pruneSchedules drops backoff entries for payments that are no longer
// pending, such as those resolved by a webhook between ticks.
func (r *Reconciler) pruneSchedules(pending []payment.Payment) {
	stillPending := make(map[string]struct{}, len(pending))
	for _, p := range pending {
		stillPending[p.ID] = struct{}{}
	}
	r.mu.Lock()
	for id := range r.nextAttempt {
		if _, ok := stillPending[id]; !ok {
			delete(r.nextAttempt, id)
		}
	}
	r.mu.Unlock()
}
