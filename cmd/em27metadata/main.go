package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/tum-esm/em27-metadata/internal/ingest"
	"github.com/tum-esm/em27-metadata/internal/store"
)

// Globals are shared by every command.
type Globals struct {
	EnvFile string `help:"Dotenv file loaded before parsing flags." default:".env" type:"path"`

	Repository  string `help:"GitHub repository holding data/{locations,sensors,campaigns}.json (owner/name)." env:"EM27_REPOSITORY"`
	Branch      string `help:"Branch of the metadata repository." default:"main" env:"EM27_BRANCH"`
	AccessToken string `help:"GitHub token for private metadata repositories." env:"GITHUB_ACCESS_TOKEN"`
	BaseURL     string `help:"Base URL for raw repository files." default:"${raw_github_url}" hidden:""`

	Locations string `help:"Local locations.json, used instead of the repository." type:"path" env:"EM27_LOCATIONS"`
	Sensors   string `help:"Local sensors.json, used instead of the repository." type:"path" env:"EM27_SENSORS"`
	Campaigns string `help:"Local campaigns.json (optional)." type:"path" env:"EM27_CAMPAIGNS"`

	CacheDB string `help:"SQLite archive of fetched documents, used when the repository is unreachable. Empty disables it." default:"data/em27-metadata.db" env:"EM27_CACHE_DB"`
}

type CLI struct {
	Globals

	Validate ValidateCmd `cmd:"" help:"Load and validate the metadata documents."`
	Get      GetCmd      `cmd:"" help:"Print the sensor data contexts between two datetimes."`
	Explode  ExplodeCmd  `cmd:"" help:"Print the context in effect at each datetime."`
	Serve    ServeCmd    `cmd:"" help:"Serve the metadata over HTTP and reload it on a schedule."`
	Archive  ArchiveCmd  `cmd:"" help:"Inspect or prune the document archive."`
}

func main() {
	loadEnvFile(os.Args[1:])

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("em27metadata"),
		kong.Description("Metadata for EM27/SUN spectrometer networks: locations, sensor setups and campaigns."),
		kong.UsageOnError(),
		kong.Vars{"raw_github_url": ingest.RawGitHubURL},
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

// loadEnvFile loads the dotenv file named by --env-file (default .env) so its
// variables are visible to kong's env lookups. A missing file is ignored.
func loadEnvFile(args []string) {
	path := ".env"
	for i, arg := range args {
		if v, ok := strings.CutPrefix(arg, "--env-file="); ok {
			path = v
		} else if arg == "--env-file" && i+1 < len(args) {
			path = args[i+1]
		}
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("env: load %s: %v", path, err)
	}
}

// source picks local files when any local path is given, otherwise the
// GitHub repository.
func (g *Globals) source() (ingest.Source, error) {
	if g.Locations != "" || g.Sensors != "" || g.Campaigns != "" {
		if g.Locations == "" || g.Sensors == "" {
			return nil, fmt.Errorf("--locations and --sensors must be given together")
		}
		return ingest.LocalFiles{Locations: g.Locations, Sensors: g.Sensors, Campaigns: g.Campaigns}, nil
	}
	if g.Repository == "" {
		return nil, fmt.Errorf("either --repository or --locations and --sensors is required")
	}
	return ingest.NewGitHubClient(g.BaseURL, g.Repository, g.Branch, g.AccessToken), nil
}

// openArchive opens the document archive, or returns nil when it is disabled.
func (g *Globals) openArchive() (*store.Store, error) {
	if g.CacheDB == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(g.CacheDB), 0o755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	st, err := store.Open(g.CacheDB)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return st, nil
}

// loader builds a loader for the configured source. The archive is only
// attached for remote sources.
func (g *Globals) loader() (*ingest.Loader, func(), error) {
	src, err := g.source()
	if err != nil {
		return nil, nil, err
	}
	if _, local := src.(ingest.LocalFiles); local {
		return ingest.NewLoader(src, nil), func() {}, nil
	}
	archive, err := g.openArchive()
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if archive != nil {
			archive.Close()
		}
	}
	return ingest.NewLoader(src, archive), closeFn, nil
}
