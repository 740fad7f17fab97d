package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"plotvault/core"

	"gopkg.in/yaml.v3"
)

// datasetFixtures is the on-disk shape shared by export, import, and seed.
// item_id is informational on export; imports always assign fresh ids.
type datasetFixtures struct {
	Charts  []chartFixture  `json:"charts,omitempty" yaml:"charts,omitempty"`
	Records []recordFixture `json:"records,omitempty" yaml:"records,omitempty"`
}

type chartFixture struct {
	ItemID      int                      `json:"item_id,omitempty" yaml:"item_id,omitempty"`
	Title       string                   `json:"title,omitempty" yaml:"title,omitempty"`
	Description string                   `json:"description,omitempty" yaml:"description,omitempty"`
	ChartType   string                   `json:"chart_type,omitempty" yaml:"chart_type,omitempty"`
	Data        []map[string]interface{} `json:"data" yaml:"data"`
	Layout      map[string]interface{}   `json:"layout,omitempty" yaml:"layout,omitempty"`
}

type recordFixture struct {
	ItemID      int                    `json:"item_id,omitempty" yaml:"item_id,omitempty"`
	Title       string                 `json:"title,omitempty" yaml:"title,omitempty"`
	Description string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Data        map[string]interface{} `json:"data" yaml:"data"`
}

// fixturesFromStored converts stored documents into their fixture shape.
func fixturesFromStored(charts []core.PlotlyDataset, records []core.SimpleRecord) *datasetFixtures {
	fixtures := &datasetFixtures{
		Charts:  make([]chartFixture, 0, len(charts)),
		Records: make([]recordFixture, 0, len(records)),
	}

	for _, c := range charts {
		fixtures.Charts = append(fixtures.Charts, chartFixture{
			ItemID:      c.ItemID,
			Title:       c.Title,
			Description: c.Description,
			ChartType:   c.ChartType,
			Data:        c.Data,
			Layout:      c.Layout,
		})
	}

	for _, r := range records {
		fixtures.Records = append(fixtures.Records, recordFixture{
			ItemID:      r.ItemID,
			Title:       r.Title,
			Description: r.Description,
			Data:        r.Data,
		})
	}

	return fixtures
}

// marshalFixtures encodes fixtures for writing. A .json extension picks
// JSON, everything else (including stdout) gets YAML.
func marshalFixtures(fixtures *datasetFixtures, ext string) ([]byte, error) {
	if strings.EqualFold(ext, ".json") {
		return json.MarshalIndent(fixtures, "", "  ")
	}
	return yaml.Marshal(fixtures)
}

// unmarshalFixtures decodes a fixtures file by extension.
func unmarshalFixtures(data []byte, ext string) (*datasetFixtures, error) {
	var fixtures datasetFixtures

	switch strings.ToLower(ext) {
	case ".json":
		if err := json.Unmarshal(data, &fixtures); err != nil {
			return nil, err
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fixtures); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported fixture format %q: use .json, .yaml, or .yml", ext)
	}

	return &fixtures, nil
}
