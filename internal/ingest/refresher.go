package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tum-esm/em27-metadata/internal/metadata"
)

const refreshTimeout = 2 * time.Minute

// Refresher reloads the metadata on a cron schedule and publishes every
// store that loads and validates. A failed reload keeps the previous store.
type Refresher struct {
	loader        *Loader
	schedule      string
	publish       func(*metadata.Metadata)
	retentionDays int
}

func NewRefresher(loader *Loader, schedule string, publish func(*metadata.Metadata)) *Refresher {
	return &Refresher{
		loader:   loader,
		schedule: schedule,
		publish:  publish,
	}
}

// SetArchiveRetention prunes archived documents older than days after each
// successful reload. Zero disables pruning.
func (r *Refresher) SetArchiveRetention(days int) {
	r.retentionDays = days
}

func (r *Refresher) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))))
	if _, err := c.AddFunc(r.schedule, func() { r.Refresh(ctx) }); err != nil {
		return fmt.Errorf("parse refresh schedule %q: %w", r.schedule, err)
	}

	log.Printf("refresher: reloading on schedule %q", r.schedule)
	c.Start()
	<-ctx.Done()
	log.Println("refresher: shutting down")
	<-c.Stop().Done()
	return nil
}

// Refresh performs one reload and reports whether a new store was published.
func (r *Refresher) Refresh(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	m, err := r.loader.Load(ctx)
	if err != nil {
		log.Printf("refresher: reload failed, keeping previous metadata: %v", err)
		return false
	}
	r.publish(m)

	if r.retentionDays > 0 && r.loader.archive != nil {
		deleted, err := r.loader.archive.CleanupOldDocuments(r.retentionDays)
		if err != nil {
			log.Printf("refresher: cleanup archive: %v", err)
		} else if deleted > 0 {
			log.Printf("refresher: pruned %d archived documents", deleted)
		}
	}
	return true
}
