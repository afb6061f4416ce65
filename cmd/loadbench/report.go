package main

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/narqo/psqr"
)

// batchStat captures one produced batch: how many samples it carried and
// how long the pipeline took to produce it.
type batchStat struct {
	samples int
	gap     time.Duration
}

type report struct {
	interval   time.Duration
	startedAt  time.Time
	windowAt   time.Time
	window     map[string][]batchStat
	cumulative map[string]*splitCumulative
}

type splitCumulative struct {
	batches   int64
	samples   int64
	busy      time.Duration
	quantiles [5]*psqr.Quantile // 25, 50, 75, 90, 99
}

func newSplitCumulative() *splitCumulative {
	return &splitCumulative{
		quantiles: [5]*psqr.Quantile{
			psqr.NewQuantile(0.25),
			psqr.NewQuantile(0.50),
			psqr.NewQuantile(0.75),
			psqr.NewQuantile(0.90),
			psqr.NewQuantile(0.99),
		},
	}
}

func newReport(interval time.Duration) *report {
	now := time.Now()
	return &report{
		interval:   interval,
		startedAt:  now,
		windowAt:   now,
		window:     make(map[string][]batchStat),
		cumulative: make(map[string]*splitCumulative),
	}
}

// record is called once per produced batch, from the iteration loop. When
// the reporting interval has elapsed it folds the window into the
// cumulative quantiles and prints a report.
func (r *report) record(split string, samples int, gap time.Duration) {
	r.window[split] = append(r.window[split], batchStat{samples: samples, gap: gap})
	if time.Since(r.windowAt) >= r.interval {
		r.flushWindow()
	}
}

func (r *report) flushWindow() {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("report for last %s:\n", time.Since(r.windowAt).Round(time.Second)))

	for _, split := range sortedSplits(r.window) {
		stats := r.window[split]
		if len(stats) == 0 {
			continue
		}

		cum, ok := r.cumulative[split]
		if !ok {
			cum = newSplitCumulative()
			r.cumulative[split] = cum
		}
		var (
			sumSamples int64
			sumBusy    time.Duration
		)
		for _, bs := range stats {
			sumSamples += int64(bs.samples)
			sumBusy += bs.gap
			for _, quantile := range cum.quantiles {
				quantile.Append(float64(bs.gap.Milliseconds()))
			}
		}
		cum.batches += int64(len(stats))
		cum.samples += sumSamples
		cum.busy += sumBusy

		slices.SortFunc(stats, func(a, b batchStat) int {
			return cmp.Compare(a.gap, b.gap)
		})
		percentile := func(p float32) time.Duration {
			idx := int(float32(len(stats)) * p / 100)
			return stats[idx].gap
		}
		builder.WriteString(
			fmt.Sprintf(
				"    - %s: %d batches (%d samples; %d sps), batch latencies (ms): p25=%d, p50=%d, p75=%d, p90=%d, p99=%d\n",
				split,
				len(stats),
				sumSamples,
				int64(float64(sumSamples)/sumBusy.Seconds()),
				percentile(25).Milliseconds(),
				percentile(50).Milliseconds(),
				percentile(75).Milliseconds(),
				percentile(90).Milliseconds(),
				percentile(99).Milliseconds(),
			),
		)
	}

	builder.WriteString(
		fmt.Sprintf(
			"    - cumulative (since program start; %s):\n",
			time.Since(r.startedAt).Round(time.Second),
		),
	)
	for _, split := range sortedSplits(r.cumulative) {
		cum := r.cumulative[split]
		builder.WriteString(
			fmt.Sprintf(
				"        - %s batch latency (ms; over %d total batches): p25=%.1f, p50=%.1f, p75=%.1f, p90=%.1f, p99=%.1f\n",
				split,
				cum.batches,
				cum.quantiles[0].Value(),
				cum.quantiles[1].Value(),
				cum.quantiles[2].Value(),
				cum.quantiles[3].Value(),
				cum.quantiles[4].Value(),
			),
		)
	}

	fmt.Println(builder.String())

	r.window = make(map[string][]batchStat)
	r.windowAt = time.Now()
}

type runSummary struct {
	duration time.Duration
	splits   map[string]splitSummary
}

type splitSummary struct {
	batches       int64
	samples       int64
	samplesPerSec float64
	p25Ms         float64
	p50Ms         float64
	p75Ms         float64
	p90Ms         float64
	p99Ms         float64
}

// finish folds any remaining window, prints a final report and returns
// the cumulative numbers for recording.
func (r *report) finish() runSummary {
	if len(r.window) > 0 {
		r.flushWindow()
	}
	summary := runSummary{
		duration: time.Since(r.startedAt),
		splits:   make(map[string]splitSummary),
	}
	for split, cum := range r.cumulative {
		summary.splits[split] = splitSummary{
			batches:       cum.batches,
			samples:       cum.samples,
			samplesPerSec: float64(cum.samples) / cum.busy.Seconds(),
			p25Ms:         cum.quantiles[0].Value(),
			p50Ms:         cum.quantiles[1].Value(),
			p75Ms:         cum.quantiles[2].Value(),
			p90Ms:         cum.quantiles[3].Value(),
			p99Ms:         cum.quantiles[4].Value(),
		}
	}
	return summary
}

func sortedSplits[V any](m map[string]V) []string {
	splits := make([]string, 0, len(m))
	for split := range m {
		splits = append(splits, split)
	}
	slices.Sort(splits)
	return splits
}
