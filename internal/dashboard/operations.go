package dashboard

import (
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	storeLatencyMetric        = "clinicops_store_call_duration_seconds"
	remindersDispatchedMetric = "clinicops_reminders_dispatched_total"
)

// Operations is a process-local view of the service's own metrics.
type Operations struct {
	StoreCalls          int64            `json:"store_calls"`
	StoreP95Ms          float64          `json:"store_p95_ms"`
	RemindersDispatched map[string]int64 `json:"reminders_dispatched"`
}

func snapshotOperations(gatherer prometheus.Gatherer) Operations {
	out := Operations{RemindersDispatched: map[string]int64{}}
	if gatherer == nil {
		return out
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return out
	}
	for _, mf := range mfs {
		if mf == nil {
			continue
		}
		switch mf.GetName() {
		case storeLatencyMetric:
			out.StoreCalls, out.StoreP95Ms = latencyP95(mf)
		case remindersDispatchedMetric:
			for _, m := range mf.Metric {
				if m == nil || m.GetCounter() == nil {
					continue
				}
				out.RemindersDispatched[labelValue(m, "status")] += int64(m.GetCounter().GetValue())
			}
		}
	}
	return out
}

// latencyP95 merges the histogram across label sets and estimates the 95th
// percentile in milliseconds.
func latencyP95(family *dto.MetricFamily) (int64, float64) {
	cumulative := map[float64]uint64{}
	var total uint64
	for _, m := range family.Metric {
		h := m.GetHistogram()
		if h == nil {
			continue
		}
		total += h.GetSampleCount()
		for _, b := range h.Bucket {
			if b != nil {
				cumulative[b.GetUpperBound()] += b.GetCumulativeCount()
			}
		}
	}
	if total == 0 || len(cumulative) == 0 {
		return 0, 0
	}
	uppers := make([]float64, 0, len(cumulative))
	for upper := range cumulative {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)
	return int64(total), histogramQuantile(0.95, total, uppers, cumulative) * 1000.0
}

func histogramQuantile(q float64, total uint64, uppers []float64, cumulative map[float64]uint64) float64 {
	target := q * float64(total)
	var prevUpper, prevCum float64
	for _, upper := range uppers {
		cum := float64(cumulative[upper])
		if cum < target {
			prevUpper, prevCum = upper, cum
			continue
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}
		inBucket := cum - prevCum
		if inBucket <= 0 {
			return upper
		}
		fraction := math.Min(math.Max((target-prevCum)/inBucket, 0), 1)
		return prevUpper + fraction*(upper-prevUpper)
	}
	last := uppers[len(uppers)-1]
	if math.IsInf(last, 1) {
		return prevUpper
	}
	return last
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.Label {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
