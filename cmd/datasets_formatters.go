package cmd

import (
	"fmt"
	"strings"
	"time"

	"plotvault/core"
)

// datasetSummary is the row shape shared by table and JSON list output.
type datasetSummary struct {
	ItemID    int       `json:"item_id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title,omitempty"`
	ChartType string    `json:"chart_type,omitempty"`
	Traces    int       `json:"traces"`
	UpdatedAt time.Time `json:"updated_at"`
}

// summarizeDatasets flattens charts and records into list rows, charts first.
func summarizeDatasets(charts []core.PlotlyDataset, records []core.SimpleRecord) []datasetSummary {
	summaries := make([]datasetSummary, 0, len(charts)+len(records))

	for _, c := range charts {
		summaries = append(summaries, datasetSummary{
			ItemID:    c.ItemID,
			Kind:      datasetKindChart,
			Title:     c.Title,
			ChartType: c.ChartType,
			Traces:    len(c.Data),
			UpdatedAt: c.UpdatedAt,
		})
	}

	for _, r := range records {
		summaries = append(summaries, datasetSummary{
			ItemID:    r.ItemID,
			Kind:      datasetKindRecord,
			Title:     r.Title,
			UpdatedAt: r.UpdatedAt,
		})
	}

	return summaries
}

// renderDatasetsTable displays datasets in a formatted table.
func renderDatasetsTable(summaries []datasetSummary) {
	if len(summaries) == 0 {
		warningColor.Println("No datasets stored")
		return
	}

	headerColor.Println("\nSTORED DATASETS")
	fmt.Println(strings.Repeat("=", 92))
	fmt.Printf("%-8s %-8s %-32s %-12s %-8s %-19s\n",
		"ITEM ID", "KIND", "TITLE", "CHART", "TRACES", "UPDATED")
	fmt.Println(strings.Repeat("-", 92))

	for _, s := range summaries {
		title := s.Title
		if title == "" {
			title = "(untitled)"
		}
		if len(title) > 32 {
			title = title[:29] + "..."
		}

		chartType := s.ChartType
		traces := "-"
		if s.Kind == datasetKindChart {
			traces = fmt.Sprintf("%d", s.Traces)
		} else {
			chartType = "-"
		}

		fmt.Printf("%-8d %-8s %-32s %-12s %-8s %-19s\n",
			s.ItemID, s.Kind, title, chartType, traces, formatTime(s.UpdatedAt))
	}

	fmt.Println(strings.Repeat("=", 92))
	fmt.Printf("Total: %d datasets\n", len(summaries))
}

// formatTime formats a timestamp for display.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "Never"
	}
	return t.Format("2006-01-02 15:04:05")
}
