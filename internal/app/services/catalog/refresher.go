package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	domain "github.com/wirebustech/wyoiwyget/internal/app/domain/catalog"
	"github.com/wirebustech/wyoiwyget/internal/app/metrics"
	"github.com/wirebustech/wyoiwyget/internal/app/storage"
	"github.com/wirebustech/wyoiwyget/pkg/logger"
)

// Offer is a freshly fetched platform price for a listing.
type Offer struct {
	PriceCents int64
	Currency   string
	Available  bool
}

// Fetcher retrieves the current offer behind a listing URL.
type Fetcher interface {
	FetchOffer(ctx context.Context, listing domain.Listing) (Offer, error)
}

// Refresher periodically re-fetches available listings so aggregated prices
// do not go stale. It runs on a cron schedule and is lifecycle-managed.
type Refresher struct {
	store   storage.ProductStore
	fetcher Fetcher
	log     *logger.Logger
	spec    string

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewRefresher constructs a listing refresher. An empty spec disables it.
func NewRefresher(store storage.ProductStore, fetcher Fetcher, spec string, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("catalog-refresher")
	}
	return &Refresher{store: store, fetcher: fetcher, log: log, spec: spec}
}

// Name implements system.Service.
func (r *Refresher) Name() string { return "catalog-refresher" }

// Start schedules the refresh job.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}
	if r.spec == "" || r.fetcher == nil {
		r.log.Info("listing refresh disabled")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(r.spec, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		r.RefreshAll(runCtx)
	}); err != nil {
		return fmt.Errorf("schedule listing refresh: %w", err)
	}
	c.Start()

	r.cron = c
	r.running = true
	r.log.Infof("listing refresh scheduled: %s", r.spec)
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	r.running = false
	return nil
}

// RefreshAll re-fetches every available listing once. Failures are logged and
// skipped so one broken platform cannot stall the rest.
func (r *Refresher) RefreshAll(ctx context.Context) {
	listings, err := r.store.ListAvailableListings(ctx)
	if err != nil {
		r.log.WithError(err).Error("list listings for refresh")
		return
	}

	var updated int
	for _, l := range listings {
		if ctx.Err() != nil {
			return
		}
		if err := r.refreshOne(ctx, l); err != nil {
			metrics.RecordListingRefresh(l.Platform, false)
			r.log.WithError(err).Warnf("refresh listing %s", l.ID)
			continue
		}
		metrics.RecordListingRefresh(l.Platform, true)
		updated++
	}
	r.log.Infof("refreshed %d/%d listings", updated, len(listings))
}

func (r *Refresher) refreshOne(ctx context.Context, l domain.Listing) error {
	offer, err := r.fetcher.FetchOffer(ctx, l)
	if err != nil {
		return err
	}

	l.PriceCents = offer.PriceCents
	if offer.Currency != "" {
		l.Currency = offer.Currency
	}
	l.Available = offer.Available
	l.FetchedAt = time.Now().UTC()

	_, err = r.store.UpdateListing(ctx, l)
	return err
}
