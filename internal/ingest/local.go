package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/tum-esm/em27-metadata/internal/metadata"
)

// Source provides the raw metadata documents.
type Source interface {
	// Name identifies the source in the document archive.
	Name() string
	FetchDocument(ctx context.Context, name string) ([]byte, error)
}

// LocalFiles reads the documents from disk. An empty campaigns path means the
// setup has no campaigns.
type LocalFiles struct {
	Locations string
	Sensors   string
	Campaigns string
}

func (l LocalFiles) Name() string {
	return "local"
}

func (l LocalFiles) FetchDocument(_ context.Context, name string) ([]byte, error) {
	var path string
	switch name {
	case DocLocations:
		path = l.Locations
	case DocSensors:
		path = l.Sensors
	case DocCampaigns:
		if l.Campaigns == "" {
			return []byte("[]"), nil
		}
		path = l.Campaigns
	default:
		return nil, fmt.Errorf("unknown document %q", name)
	}
	if path == "" {
		return nil, fmt.Errorf("%s file: no path configured", name)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s file at %s does not exist", name, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s file: %w", name, err)
	}
	if err := CheckDocument(data); err != nil {
		return nil, fmt.Errorf("%s file at %s %w", name, path, err)
	}
	return data, nil
}

// LoadLocalFiles reads and validates the documents at the given paths.
func LoadLocalFiles(locationsPath, sensorsPath, campaignsPath string) (*metadata.Metadata, error) {
	src := LocalFiles{Locations: locationsPath, Sensors: sensorsPath, Campaigns: campaignsPath}

	var docs Documents
	for _, name := range DocumentNames {
		data, err := src.FetchDocument(context.Background(), name)
		if err != nil {
			return nil, err
		}
		docs.Set(name, data)
	}
	return Build(docs)
}
