package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/tum-esm/em27-metadata/internal/api"
	"github.com/tum-esm/em27-metadata/internal/ingest"
	"github.com/tum-esm/em27-metadata/internal/metadata"
	"github.com/tum-esm/em27-metadata/internal/models"
)

const loadTimeout = 2 * time.Minute

func load(g *Globals) (*metadata.Metadata, error) {
	loader, closeFn, err := g.loader()
	if err != nil {
		return nil, err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()
	return loader.Load(ctx)
}

type ValidateCmd struct{}

func (c *ValidateCmd) Run(g *Globals) error {
	md, err := load(g)
	if err != nil {
		if violations := metadata.Violations(err); len(violations) > 0 {
			for _, v := range violations {
				fmt.Println(v)
			}
			return fmt.Errorf("%d violations", len(violations))
		}
		return err
	}
	fmt.Printf("metadata is valid: %d locations, %d sensors, %d campaigns\n",
		len(md.Locations()), len(md.SensorIDs()), len(md.Campaigns()))
	return nil
}

type GetCmd struct {
	SensorID string `arg:"" name:"sensor" help:"Sensor id."`
	From     string `arg:"" help:"Start datetime (YYYY-MM-DDTHH:MM:SS+HHMM), inclusive."`
	To       string `arg:"" help:"End datetime (YYYY-MM-DDTHH:MM:SS+HHMM), inclusive."`
	JSON     bool   `help:"Print JSON instead of a table."`
}

func (c *GetCmd) Run(g *Globals) error {
	from, err := ingest.ParseDatetime(c.From)
	if err != nil {
		return err
	}
	to, err := ingest.ParseDatetime(c.To)
	if err != nil {
		return err
	}

	md, err := load(g)
	if err != nil {
		return err
	}
	ctxs, err := md.Get(c.SensorID, from, to)
	if err != nil {
		return err
	}

	if c.JSON {
		out := make([]api.ContextJSON, 0, len(ctxs))
		for _, x := range ctxs {
			out = append(out, api.ToContextJSON(x))
		}
		return printJSON(out)
	}

	w := newTable()
	for _, x := range ctxs {
		printContextRow(w, &x)
	}
	return w.Flush()
}

type ExplodeCmd struct {
	SensorID string   `arg:"" name:"sensor" help:"Sensor id."`
	Times    []string `arg:"" name:"datetime" help:"Datetimes (YYYY-MM-DDTHH:MM:SS+HHMM)."`
	JSON     bool     `help:"Print JSON instead of a table."`
}

func (c *ExplodeCmd) Run(g *Globals) error {
	ts := make([]time.Time, 0, len(c.Times))
	for _, s := range c.Times {
		t, err := ingest.ParseDatetime(s)
		if err != nil {
			return err
		}
		ts = append(ts, t)
	}

	md, err := load(g)
	if err != nil {
		return err
	}
	ctxs, err := md.Explode(c.SensorID, ts)
	if err != nil {
		return err
	}

	if c.JSON {
		out := make([]*api.ContextJSON, len(ctxs))
		for i, x := range ctxs {
			if x != nil {
				cj := api.ToContextJSON(*x)
				out[i] = &cj
			}
		}
		return printJSON(out)
	}

	w := newTable()
	for i, x := range ctxs {
		if x == nil {
			fmt.Fprintf(w, "%s\t-\t\t\t\t\t\n", ingest.FormatDatetime(ts[i]))
			continue
		}
		printContextRow(w, x)
	}
	return w.Flush()
}

type ServeCmd struct {
	Port                 string `help:"HTTP server port." default:"8080" env:"PORT"`
	RefreshSchedule      string `help:"Cron schedule for reloading the metadata." default:"@every 15m" env:"EM27_REFRESH_SCHEDULE"`
	ArchiveRetentionDays int    `help:"Prune archived documents older than this many days after each reload (0 keeps everything)." default:"90"`
}

func (c *ServeCmd) Run(g *Globals) error {
	loader, closeFn, err := g.loader()
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := api.NewServer(nil, loader.Archive(), c.Port)
	refresher := ingest.NewRefresher(loader, c.RefreshSchedule, server.Set)
	refresher.SetArchiveRetention(c.ArchiveRetentionDays)

	if !refresher.Refresh(ctx) {
		log.Println("initial load failed, serving 503 until a reload succeeds")
	}

	errc := make(chan error, 2)
	go func() { errc <- refresher.Run(ctx) }()
	go func() { errc <- server.Run(ctx) }()

	var runErr error
	for range 2 {
		if err := <-errc; err != nil && runErr == nil {
			runErr = err
			cancel()
		}
	}
	log.Println("shutdown complete")
	return runErr
}

type ArchiveCmd struct {
	Stats   ArchiveStatsCmd   `cmd:"" help:"Show archive contents and recent fetch health."`
	Cleanup ArchiveCleanupCmd `cmd:"" help:"Delete archived documents older than the retention period."`
}

type ArchiveStatsCmd struct {
	Days int `help:"Days of fetch history to show." default:"7"`
}

func (c *ArchiveStatsCmd) Run(g *Globals) error {
	archive, err := g.openArchive()
	if err != nil {
		return err
	}
	if archive == nil {
		return errors.New("archive is disabled (--cache-db is empty)")
	}
	defer archive.Close()

	stats, err := archive.DocumentStats()
	if err != nil {
		return err
	}
	fmt.Printf("%d documents, %d bytes compressed\n", stats.TotalCount, stats.TotalSizeBytes)
	if stats.TotalCount > 0 {
		fmt.Printf("fetched between %s and %s\n",
			stats.OldestFetchedAt.Format(time.RFC3339), stats.NewestFetchedAt.Format(time.RFC3339))
	}
	for _, name := range ingest.DocumentNames {
		fmt.Printf("  %-10s %4d copies %8d bytes\n", name, stats.CountByName[name], stats.SizeByName[name])
	}

	health, err := archive.GetFetchHealth(c.Days)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nDATE\tSOURCE\tRUNS\tFAILED\tFALLBACKS")
	for _, h := range health {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\n", h.Date, h.Source, h.TotalRuns, h.FailedRuns, h.Fallbacks)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	failures, err := archive.GetRecentFetchErrors(5)
	if err != nil {
		return err
	}
	for _, f := range failures {
		fmt.Printf("%s %s: %s\n", f.StartedAt.Format(time.RFC3339), f.Source, f.ErrorMessage.String)
	}
	return nil
}

type ArchiveCleanupCmd struct {
	RetentionDays int `help:"Keep documents fetched within this many days." default:"90"`
}

func (c *ArchiveCleanupCmd) Run(g *Globals) error {
	archive, err := g.openArchive()
	if err != nil {
		return err
	}
	if archive == nil {
		return errors.New("archive is disabled (--cache-db is empty)")
	}
	defer archive.Close()

	deleted, err := archive.CleanupOldDocuments(c.RetentionDays)
	if err != nil {
		return err
	}
	log.Printf("deleted %d archived documents older than %d days", deleted, c.RetentionDays)
	return nil
}

func newTable() *tabwriter.Writer {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FROM\tTO\tLOCATION\tPROFILE\tUTC OFFSET\tPRESSURE\tSHARED DATE")
	return w
}

func printContextRow(w *tabwriter.Writer, x *models.SensorDataContext) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%s\t%v\n",
		ingest.FormatDatetime(x.From), ingest.FormatDatetime(x.To),
		x.Location.LocationID, x.AtmosphericProfileLocation.LocationID,
		x.UTCOffset, x.PressureDataSource, x.MultipleContextsOnDate)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
