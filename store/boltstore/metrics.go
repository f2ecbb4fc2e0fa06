package boltstore

import (
	"github.com/prometheus/client_golang/prometheus"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var _ prometheus.Collector = (*Store)(nil)

var (
	datasetsDesc = prometheus.NewDesc(
		"atmogrid_store_datasets_total",
		"Number of datasets in the grid store",
		nil, nil)

	pagesDesc = prometheus.NewDesc(
		"atmogrid_store_pages_total",
		"Number of stored chunk pages per dataset",
		[]string{"dataset"}, nil)

	pageBytesDesc = prometheus.NewDesc(
		"atmogrid_store_page_bytes",
		"Stored (compressed) page bytes per dataset",
		[]string{"dataset"}, nil)

	subarrayReadsDesc = prometheus.NewDesc(
		"atmogrid_store_subarray_reads_total",
		"Total number of sub-array reads",
		nil, nil)

	subarrayWritesDesc = prometheus.NewDesc(
		"atmogrid_store_subarray_writes_total",
		"Total number of committed sub-array writes",
		nil, nil)
)

// Describe returns all descriptions of the collector.
func (s *Store) Describe(ch chan<- *prometheus.Desc) {
	ch <- datasetsDesc
	ch <- pagesDesc
	ch <- pageBytesDesc
	ch <- subarrayReadsDesc
	ch <- subarrayWritesDesc
}

// Collect returns the current state of all metrics of the collector.
func (s *Store) Collect(ch chan<- prometheus.Metric) {
	type pageStats struct {
		pages int
		bytes int
	}
	stats := make(map[string]pageStats)
	datasets := 0

	err := s.view(func(tx *bolt.Tx) error {
		datasets = tx.Bucket(datasetsBucket).Stats().KeyN

		pages := tx.Bucket(pagesBucket)
		return pages.ForEach(func(name, v []byte) error {
			if v != nil {
				return nil
			}

			var st pageStats
			err := pages.Bucket(name).ForEach(func(_, page []byte) error {
				st.pages++
				st.bytes += len(page)

				return nil
			})
			stats[string(name)] = st

			return err
		})
	})
	if err != nil {
		s.logger.Warn("Failed to collect store metrics", zap.Error(err))
	}

	ch <- prometheus.MustNewConstMetric(datasetsDesc, prometheus.GaugeValue, float64(datasets))
	for name, st := range stats {
		ch <- prometheus.MustNewConstMetric(pagesDesc, prometheus.GaugeValue, float64(st.pages), name)
		ch <- prometheus.MustNewConstMetric(pageBytesDesc, prometheus.GaugeValue, float64(st.bytes), name)
	}
	ch <- prometheus.MustNewConstMetric(subarrayReadsDesc, prometheus.CounterValue, float64(s.reads.Load()))
	ch <- prometheus.MustNewConstMetric(subarrayWritesDesc, prometheus.CounterValue, float64(s.writes.Load()))
}
