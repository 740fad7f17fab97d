package core

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"plotvault/metrics"
)

// DefaultCacheSize is the per-type entry cap for the in-process cache
const DefaultCacheSize = 1000

// DatasetCache is an in-process LRU over decoded documents. It fronts the
// optional Redis tier so hot reads skip both Redis and Mongo. Entries are
// invalidated explicitly on mutation, so no TTL is needed.
type DatasetCache struct {
	datasets *lru.Cache[int, *PlotlyDataset]
	records  *lru.Cache[int, *SimpleRecord]
}

// NewDatasetCache creates an LRU cache holding up to size entries per type.
func NewDatasetCache(size int) (*DatasetCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	datasets, err := lru.New[int, *PlotlyDataset](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create dataset cache: %w", err)
	}
	records, err := lru.New[int, *SimpleRecord](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}

	return &DatasetCache{
		datasets: datasets,
		records:  records,
	}, nil
}

// GetDataset returns a cached Plotly dataset by item ID.
func (dc *DatasetCache) GetDataset(itemID int) (*PlotlyDataset, bool) {
	dataset, ok := dc.datasets.Get(itemID)
	if ok {
		metrics.CacheHits.WithLabelValues("memory").Inc()
	} else {
		metrics.CacheMisses.WithLabelValues("memory").Inc()
	}
	return dataset, ok
}

// PutDataset caches a Plotly dataset under its item ID.
func (dc *DatasetCache) PutDataset(dataset *PlotlyDataset) {
	if dataset == nil {
		return
	}
	dc.datasets.Add(dataset.ItemID, dataset)
}

// InvalidateDataset drops a Plotly dataset from the cache.
func (dc *DatasetCache) InvalidateDataset(itemID int) {
	dc.datasets.Remove(itemID)
}

// GetRecord returns a cached simple record by item ID.
func (dc *DatasetCache) GetRecord(itemID int) (*SimpleRecord, bool) {
	record, ok := dc.records.Get(itemID)
	if ok {
		metrics.CacheHits.WithLabelValues("memory").Inc()
	} else {
		metrics.CacheMisses.WithLabelValues("memory").Inc()
	}
	return record, ok
}

// PutRecord caches a simple record under its item ID.
func (dc *DatasetCache) PutRecord(record *SimpleRecord) {
	if record == nil {
		return
	}
	dc.records.Add(record.ItemID, record)
}

// InvalidateRecord drops a simple record from the cache.
func (dc *DatasetCache) InvalidateRecord(itemID int) {
	dc.records.Remove(itemID)
}

// Purge empties both caches. The seed command calls this after bulk loads.
func (dc *DatasetCache) Purge() {
	dc.datasets.Purge()
	dc.records.Purge()
}

// Len reports cached entry counts for diagnostics.
func (dc *DatasetCache) Len() (datasets, records int) {
	return dc.datasets.Len(), dc.records.Len()
}
