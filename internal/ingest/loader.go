package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/tum-esm/em27-metadata/internal/metadata"
	"github.com/tum-esm/em27-metadata/internal/metrics"
	"github.com/tum-esm/em27-metadata/internal/store"
)

// Loader turns the documents of a source into a validated metadata store.
// With an archive configured, every fetched document is archived and a
// failed fetch falls back to the newest archived copy.
type Loader struct {
	source  Source
	archive *store.Store
}

func NewLoader(source Source, archive *store.Store) *Loader {
	return &Loader{source: source, archive: archive}
}

func (l *Loader) Source() Source {
	return l.source
}

// Archive returns the document archive, or nil when none is configured.
func (l *Loader) Archive() *store.Store {
	return l.archive
}

func (l *Loader) Load(ctx context.Context) (*metadata.Metadata, error) {
	var run *store.FetchRun
	if l.archive != nil {
		var err error
		run, err = l.archive.StartFetchRun(l.source.Name())
		if err != nil {
			log.Printf("loader: start fetch run: %v", err)
		}
	}

	docs, fallbacks, err := l.fetchAll(ctx, run)
	var m *metadata.Metadata
	result := "fetch_failed"
	if err == nil {
		m, err = Build(docs)
		result = "ok"
		if err != nil {
			result = "invalid"
			for _, v := range metadata.Violations(err) {
				metrics.ValidationViolationsTotal.WithLabelValues(v.Document, string(v.Rule)).Inc()
			}
		}
	}
	metrics.ReloadsTotal.WithLabelValues(result).Inc()

	if run != nil {
		run.DocumentsFetched = sql.NullInt64{Int64: int64(len(DocumentNames) - fallbacks), Valid: err == nil}
		run.DocumentsFromArchive = sql.NullInt64{Int64: int64(fallbacks), Valid: true}
		run.Success = err == nil
		if err != nil {
			run.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
		}
		if cerr := l.archive.CompleteFetchRun(run); cerr != nil {
			log.Printf("loader: complete fetch run: %v", cerr)
		}
	}

	if err != nil {
		return nil, err
	}

	metrics.LastSuccessfulReload.SetToCurrentTime()
	log.Printf("loader: loaded %d locations, %d sensors, %d campaigns from %s",
		len(m.Locations()), len(m.SensorIDs()), len(m.Campaigns()), l.source.Name())
	return m, nil
}

func (l *Loader) fetchAll(ctx context.Context, run *store.FetchRun) (Documents, int, error) {
	results := make([][]byte, len(DocumentNames))
	var fallbacks atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range DocumentNames {
		g.Go(func() error {
			data, archived, err := l.fetch(gctx, run, name)
			if err != nil {
				return err
			}
			if archived {
				fallbacks.Add(1)
			}
			results[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Documents{}, int(fallbacks.Load()), err
	}

	var docs Documents
	for i, name := range DocumentNames {
		docs.Set(name, results[i])
	}
	return docs, int(fallbacks.Load()), nil
}

func (l *Loader) fetch(ctx context.Context, run *store.FetchRun, name string) ([]byte, bool, error) {
	data, err := l.source.FetchDocument(ctx, name)
	if err == nil {
		if l.archive != nil {
			var runID *string
			if run != nil {
				runID = &run.ID
			}
			if _, err := l.archive.StoreDocument(runID, l.source.Name(), name, data); err != nil {
				log.Printf("loader: archive %s: %v", name, err)
			}
		}
		return data, false, nil
	}
	if l.archive == nil {
		return nil, false, err
	}

	doc, aerr := l.archive.LatestDocument(l.source.Name(), name)
	if aerr != nil {
		log.Printf("loader: read archived %s: %v", name, aerr)
		return nil, false, err
	}
	if doc == nil {
		return nil, false, fmt.Errorf("%w (no archived copy)", err)
	}
	payload, perr := doc.Payload()
	if perr != nil {
		log.Printf("loader: decompress archived %s: %v", name, perr)
		return nil, false, err
	}

	log.Printf("loader: fetch %s failed, using archived copy from %s: %v",
		name, doc.FetchedAt.Format("2006-01-02 15:04"), err)
	metrics.DocumentFallbacksTotal.WithLabelValues(name).Inc()
	return payload, true, nil
}
