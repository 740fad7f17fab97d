package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Size and cardinality limits on chart payloads. The trace cap and the byte
// cap together bound what a single document can cost the store and every
// client that later renders it.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxChartTypeLength   = 50
	MaxTraces            = 100
	MaxPayloadBytes      = 10 * 1024 * 1024 // 10MB
)

// DefaultChartType is applied when a chart is created without one.
const DefaultChartType = ChartTypeLine

// ChartType names the known Plotly chart families.
type ChartType string

const (
	ChartTypeLine      ChartType = "line"
	ChartTypeBar       ChartType = "bar"
	ChartTypeScatter   ChartType = "scatter"
	ChartTypePie       ChartType = "pie"
	ChartTypeHeatmap   ChartType = "heatmap"
	ChartTypeHistogram ChartType = "histogram"
	ChartTypeBox       ChartType = "box"
	ChartTypeSurface   ChartType = "surface"
)

// String returns the string representation
func (c ChartType) String() string {
	return string(c)
}

// IsValid checks if the chart type is one of the known families. Unknown
// types are still stored (Plotly grows trace types faster than this list),
// so this is advisory, not a validation gate.
func (c ChartType) IsValid() bool {
	switch c {
	case ChartTypeLine, ChartTypeBar, ChartTypeScatter, ChartTypePie,
		ChartTypeHeatmap, ChartTypeHistogram, ChartTypeBox, ChartTypeSurface:
		return true
	default:
		return false
	}
}

// PlotlyDataset is a stored chart document: raw Plotly traces and layout plus
// descriptive fields. item_id is the stable client-facing identifier; the
// database id travels separately in responses.
type PlotlyDataset struct {
	ID          string                   `json:"id,omitempty" bson:"-"`
	ItemID      int                      `json:"item_id" bson:"item_id"`
	Title       string                   `json:"title,omitempty" bson:"title,omitempty"`
	Description string                   `json:"description,omitempty" bson:"description,omitempty"`
	ChartType   string                   `json:"chart_type,omitempty" bson:"chart_type,omitempty"`
	Data        []map[string]interface{} `json:"data" bson:"data"`
	Layout      map[string]interface{}   `json:"layout,omitempty" bson:"layout,omitempty"`
	CreatedAt   time.Time                `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at" bson:"updated_at"`
}

// SimpleRecord is a stored free-form document for clients that just need a
// keyed JSON blob with optional labeling.
type SimpleRecord struct {
	ID          string                 `json:"id,omitempty" bson:"-"`
	ItemID      int                    `json:"item_id" bson:"item_id"`
	Data        map[string]interface{} `json:"data" bson:"data"`
	Title       string                 `json:"title,omitempty" bson:"title,omitempty"`
	Description string                 `json:"description,omitempty" bson:"description,omitempty"`
	CreatedAt   time.Time              `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" bson:"updated_at"`
}

// PlotlyCreate is the payload for creating a chart. Data and layout accept
// the exact Plotly JSON the dashboard produces.
type PlotlyCreate struct {
	Title       string                   `json:"title" validate:"omitempty,max=200"`
	Description string                   `json:"description" validate:"omitempty,max=1000"`
	ChartType   string                   `json:"chart_type" validate:"omitempty,max=50"`
	Data        []map[string]interface{} `json:"data" validate:"max=100"`
	Layout      map[string]interface{}   `json:"layout"`
}

// PlotlyUpdate is the partial-update payload. Pointer fields distinguish
// "leave unchanged" from "set to empty".
type PlotlyUpdate struct {
	Title       *string                   `json:"title" validate:"omitempty,max=200"`
	Description *string                   `json:"description" validate:"omitempty,max=1000"`
	ChartType   *string                   `json:"chart_type" validate:"omitempty,max=50"`
	Data        *[]map[string]interface{} `json:"data" validate:"omitempty,max=100"`
	Layout      *map[string]interface{}   `json:"layout"`
}

// SimpleCreate is the payload for creating a free-form record.
type SimpleCreate struct {
	Data        map[string]interface{} `json:"data"`
	Title       string                 `json:"title" validate:"omitempty,max=200"`
	Description string                 `json:"description" validate:"omitempty,max=1000"`
}

// SimpleUpdate is the partial-update payload for free-form records.
type SimpleUpdate struct {
	Data        *map[string]interface{} `json:"data"`
	Title       *string                 `json:"title" validate:"omitempty,max=200"`
	Description *string                 `json:"description" validate:"omitempty,max=1000"`
}

// textFieldChars are rejected in titles and descriptions. The dashboard
// renders these fields into the DOM, so markup characters never get stored.
const textFieldChars = `<>"'&`

// ValidateTextField rejects values carrying markup-significant characters.
func ValidateTextField(field, value string) error {
	if idx := strings.IndexAny(value, textFieldChars); idx >= 0 {
		return fmt.Errorf("invalid character %q in %s", value[idx], field)
	}
	return nil
}

// validateTraces applies the trace count and total payload size caps.
func validateTraces(data []map[string]interface{}) error {
	if len(data) > MaxTraces {
		return fmt.Errorf("too many traces: %d (max %d)", len(data), MaxTraces)
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("traces are not serializable: %w", err)
	}
	if len(encoded) > MaxPayloadBytes {
		return fmt.Errorf("data payload too large: %d bytes (max %d)", len(encoded), MaxPayloadBytes)
	}
	return nil
}

// Validate checks the create payload beyond what struct tags cover: required
// traces, text field characters, and the payload size cap.
func (p *PlotlyCreate) Validate() error {
	if p == nil {
		return fmt.Errorf("cannot validate nil payload")
	}
	if p.Data == nil {
		return fmt.Errorf("data is required")
	}
	if err := ValidateTextField("title", p.Title); err != nil {
		return err
	}
	if err := ValidateTextField("description", p.Description); err != nil {
		return err
	}
	return validateTraces(p.Data)
}

// Validate checks the update payload's present fields.
func (p *PlotlyUpdate) Validate() error {
	if p == nil {
		return fmt.Errorf("cannot validate nil payload")
	}
	if p.Title != nil {
		if err := ValidateTextField("title", *p.Title); err != nil {
			return err
		}
	}
	if p.Description != nil {
		if err := ValidateTextField("description", *p.Description); err != nil {
			return err
		}
	}
	if p.Data != nil {
		return validateTraces(*p.Data)
	}
	return nil
}

// IsEmpty reports whether the update carries no fields at all.
func (p *PlotlyUpdate) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.ChartType == nil &&
		p.Data == nil && p.Layout == nil
}

// Changes flattens the present fields into a column map for the store.
func (p *PlotlyUpdate) Changes() map[string]interface{} {
	changes := make(map[string]interface{})
	if p.Title != nil {
		changes["title"] = *p.Title
	}
	if p.Description != nil {
		changes["description"] = *p.Description
	}
	if p.ChartType != nil {
		changes["chart_type"] = *p.ChartType
	}
	if p.Data != nil {
		changes["data"] = *p.Data
	}
	if p.Layout != nil {
		changes["layout"] = *p.Layout
	}
	return changes
}

// Validate checks the create payload for free-form records.
func (s *SimpleCreate) Validate() error {
	if s == nil {
		return fmt.Errorf("cannot validate nil payload")
	}
	if s.Data == nil {
		return fmt.Errorf("data is required")
	}
	if err := ValidateTextField("title", s.Title); err != nil {
		return err
	}
	return ValidateTextField("description", s.Description)
}

// Validate checks the update payload's present fields.
func (s *SimpleUpdate) Validate() error {
	if s == nil {
		return fmt.Errorf("cannot validate nil payload")
	}
	if s.Title != nil {
		if err := ValidateTextField("title", *s.Title); err != nil {
			return err
		}
	}
	if s.Description != nil {
		if err := ValidateTextField("description", *s.Description); err != nil {
			return err
		}
	}
	return nil
}

// IsEmpty reports whether the update carries no fields at all.
func (s *SimpleUpdate) IsEmpty() bool {
	return s.Data == nil && s.Title == nil && s.Description == nil
}

// Changes flattens the present fields into a column map for the store.
func (s *SimpleUpdate) Changes() map[string]interface{} {
	changes := make(map[string]interface{})
	if s.Data != nil {
		changes["data"] = *s.Data
	}
	if s.Title != nil {
		changes["title"] = *s.Title
	}
	if s.Description != nil {
		changes["description"] = *s.Description
	}
	return changes
}

// NewPlotlyDataset builds a stored document from a validated create payload.
// The item_id is assigned by the store at insert time.
func NewPlotlyDataset(p *PlotlyCreate, now time.Time) *PlotlyDataset {
	chartType := p.ChartType
	if chartType == "" {
		chartType = DefaultChartType.String()
	}
	return &PlotlyDataset{
		Title:       p.Title,
		Description: p.Description,
		ChartType:   chartType,
		Data:        p.Data,
		Layout:      p.Layout,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewSimpleRecord builds a stored document from a validated create payload.
func NewSimpleRecord(s *SimpleCreate, now time.Time) *SimpleRecord {
	return &SimpleRecord{
		Data:        s.Data,
		Title:       s.Title,
		Description: s.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
