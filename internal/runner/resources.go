package runner

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ReadResources reads FHIR resources from files. A .ndjson file holds one
// resource per line; a .json file holds a resource, an array of resources
// or a Bundle whose entries are taken. Directories contribute their .json
// and .ndjson files.
func ReadResources(paths ...string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			res, err := readResourceFile(p)
			if err != nil {
				return nil, err
			}
			out = append(out, res...)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".json", ".ndjson":
				res, err := readResourceFile(path)
				if err != nil {
					return err
				}
				out = append(out, res...)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readResourceFile(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path) //nolint:gosec // resource paths come from the user
	if err != nil {
		return nil, err
	}
	var res []json.RawMessage
	if strings.EqualFold(filepath.Ext(path), ".ndjson") {
		res, err = splitNDJSON(data)
	} else {
		res, err = SplitResources(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}

func splitNDJSON(data []byte) ([]json.RawMessage, error) {
	var out []json.RawMessage
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		if !json.Valid(text) {
			return nil, fmt.Errorf("line %d: invalid JSON", line)
		}
		out = append(out, json.RawMessage(bytes.Clone(text)))
	}
	return out, sc.Err()
}

// SplitResources splits one JSON document into resources: an array yields
// its items, a Bundle yields its entries' resources and any other object
// is a single resource.
func SplitResources(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var bundle struct {
		ResourceType string `json:"resourceType"`
		Entry        []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, err
	}
	if bundle.ResourceType != "Bundle" {
		return []json.RawMessage{json.RawMessage(data)}, nil
	}
	out := make([]json.RawMessage, 0, len(bundle.Entry))
	for _, e := range bundle.Entry {
		if len(e.Resource) > 0 {
			out = append(out, e.Resource)
		}
	}
	return out, nil
}
