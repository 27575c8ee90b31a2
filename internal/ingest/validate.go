package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotJSON = errors.New("is not a valid json file")
	ErrNotList = errors.New("is not a list of objects")
)

// splitList checks that data is a JSON list of objects and returns the raw
// elements.
func splitList(data []byte) ([]json.RawMessage, error) {
	if !json.Valid(data) {
		return nil, ErrNotJSON
	}

	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		return nil, ErrNotList
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, ErrNotList
	}
	for i, item := range items {
		if !bytes.HasPrefix(bytes.TrimSpace(item), []byte("{")) {
			return nil, fmt.Errorf("%w: element %d", ErrNotList, i)
		}
	}
	return items, nil
}

// CheckDocument reports whether data has the shape of a metadata document
// without decoding its entries.
func CheckDocument(data []byte) error {
	_, err := splitList(data)
	return err
}

// missingFields returns the names flagged as missing, sorted.
func missingFields(flags map[string]bool) []string {
	var missing []string
	for name, isMissing := range flags {
		if isMissing {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
