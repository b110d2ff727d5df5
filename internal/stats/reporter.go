package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Reporter outputs engine statistics to console and/or file.
type Reporter struct {
	collector   *Collector
	recorder    *Recorder
	intervalSec int
	exportFile  string
}

// NewReporter creates a new statistics reporter. The recorder is optional;
// when present the report includes the traffic counters and throughput.
func NewReporter(collector *Collector, recorder *Recorder, intervalSec int, exportFile string) *Reporter {
	return &Reporter{
		collector:   collector,
		recorder:    recorder,
		intervalSec: intervalSec,
		exportFile:  exportFile,
	}
}

// StartPeriodicReport begins periodic statistics reporting in a goroutine.
func (r *Reporter) StartPeriodicReport(ctx context.Context) {
	if r.intervalSec <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(time.Duration(r.intervalSec) * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Println(r.FormatReport())
			}
		}
	}()
}

// PrintFinalReport prints the final statistics summary.
func (r *Reporter) PrintFinalReport() {
	r.collector.Finish()
	fmt.Println(r.FormatReport())
}

// ExportJSON exports statistics to a JSON file.
func (r *Reporter) ExportJSON() error {
	if r.exportFile == "" {
		return nil
	}

	snap := r.collector.Snapshot()
	min, avg, max, p99 := snap.ResponseTimeStats()

	export := map[string]interface{}{
		"start_time":   snap.StartTime.Format(time.RFC3339),
		"end_time":     snap.EndTime.Format(time.RFC3339),
		"duration_sec": snap.Duration().Seconds(),
		"operations":   map[string]interface{}{},
		"response_times_ms": map[string]interface{}{
			"min": float64(min) / float64(time.Millisecond),
			"avg": float64(avg) / float64(time.Millisecond),
			"max": float64(max) / float64(time.Millisecond),
			"p99": float64(p99) / float64(time.Millisecond),
		},
	}

	if r.recorder != nil {
		sample := r.recorder.Sample()
		export["traffic"] = map[string]interface{}{
			"pdu_count":  sample.PDUCount,
			"byte_count": sample.ByteCount,
		}
	}

	ops := export["operations"].(map[string]interface{})
	for name, s := range snap.Operations {
		ops[name] = map[string]interface{}{
			"sent":     s.Sent,
			"received": s.Received,
			"success":  s.Success,
			"failed":   s.Failed,
			"timeout":  s.Timeout,
		}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats JSON: %w", err)
	}

	if err := os.WriteFile(r.exportFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats file %s: %w", r.exportFile, err)
	}

	log.WithField("file", r.exportFile).Info("Statistics exported to JSON")
	return nil
}

// FormatReport generates a formatted statistics report string.
func (r *Reporter) FormatReport() string {
	snap := r.collector.Snapshot()
	elapsed := snap.Duration()
	min, avg, max, p99 := snap.ResponseTimeStats()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n=== SLE Engine Statistics (elapsed: %s) ===\n", elapsed.Round(time.Second)))
	sb.WriteString("Operations:\n")

	// Sort operation names for consistent output
	opNames := make([]string, 0, len(snap.Operations))
	for name := range snap.Operations {
		opNames = append(opNames, name)
	}
	sort.Strings(opNames)

	for _, name := range opNames {
		s := snap.Operations[name]
		sb.WriteString(fmt.Sprintf("  %-20s sent=%-5d recv=%-5d success=%-5d fail=%-5d timeout=%-5d\n",
			name+":", s.Sent, s.Received, s.Success, s.Failed, s.Timeout))
	}

	if r.recorder != nil {
		previous, hasPrevious := r.recorder.Last()
		sample := r.recorder.Sample()
		sb.WriteString("Traffic:\n")
		sb.WriteString(fmt.Sprintf("  PDUs: %d  |  Bytes: %d  |  State: %v\n",
			sample.PDUCount, sample.ByteCount, r.recorder.LastState()))
		if hasPrevious {
			rate := RateBetween(previous, sample)
			sb.WriteString(fmt.Sprintf("  Rate: %.1f PDU/s  |  %.1f B/s\n",
				rate.PDUsPerSecond, rate.BytesPerSecond))
		}
	}

	if len(snap.ResponseTimes) > 0 {
		sb.WriteString("Confirmation Times:\n")
		sb.WriteString(fmt.Sprintf("  Min: %s  |  Avg: %s  |  Max: %s  |  P99: %s\n",
			min.Round(time.Microsecond), avg.Round(time.Microsecond),
			max.Round(time.Microsecond), p99.Round(time.Microsecond)))
	}

	sb.WriteString("================================================\n")
	return sb.String()
}
