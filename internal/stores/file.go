package stores

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/albapepper/nearlist/internal/geo"
	"github.com/albapepper/nearlist/internal/zone"
)

// exportFile mirrors the web app's saved/exported data.
type exportFile struct {
	Stores   []exportStore  `json:"stores"`
	Settings exportSettings `json:"settings"`
}

type exportStore struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	Location struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"location"`
	TriggerRadius float64      `json:"triggerRadius"`
	Items         []exportItem `json:"items"`
	CreatedAt     string       `json:"createdAt"`
}

type exportItem struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Checked bool   `json:"checked"`
}

type exportSettings struct {
	UpdateInterval int `json:"updateInterval"` // milliseconds
}

// File reads stores from a JSON export on every call, so edits to the file
// are picked up without a restart.
type File struct {
	path string
}

// NewFile creates a provider for the export at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Stores parses the file.
func (f *File) Stores(ctx context.Context) ([]zone.Store, error) {
	data, err := f.read()
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// UpdateInterval returns the position update interval saved in the export,
// or zero when none is set.
func (f *File) UpdateInterval() (time.Duration, error) {
	data, err := f.read()
	if err != nil {
		return 0, err
	}
	var doc exportFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return time.Duration(doc.Settings.UpdateInterval) * time.Millisecond, nil
}

func (f *File) read() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read stores file: %w", err)
	}
	return data, nil
}

// Decode converts an export document to stores. Stores with an invalid
// location or a non-positive radius are rejected.
func Decode(data []byte) ([]zone.Store, error) {
	var doc exportFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse stores: %w", err)
	}

	out := make([]zone.Store, 0, len(doc.Stores))
	for i, s := range doc.Stores {
		c, err := s.validate(i)
		if err != nil {
			return nil, err
		}

		open := 0
		for _, item := range s.Items {
			if !item.Checked {
				open++
			}
		}
		out = append(out, zone.Store{
			ID:                  s.ID,
			Name:                s.Name,
			Address:             s.Address,
			Coordinate:          c,
			TriggerRadiusMeters: s.TriggerRadius,
			ItemCount:           open,
		})
	}
	return out, nil
}

func (s exportStore) validate(i int) (geo.Coordinate, error) {
	c := geo.Coordinate{Latitude: s.Location.Lat, Longitude: s.Location.Lng}
	if s.ID == "" {
		return c, fmt.Errorf("store %d: id is required", i)
	}
	if !c.Valid() {
		return c, fmt.Errorf("store %s: invalid location %s", s.ID, c)
	}
	if s.TriggerRadius <= 0 {
		return c, fmt.Errorf("store %s: trigger radius must be positive", s.ID)
	}
	return c, nil
}
