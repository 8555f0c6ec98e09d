// Package timing measures annotation latency: the time between an invoice's
// registration at the gateway and its annotation in the ledger.
package timing

import (
	"sort"
	"time"

	"rcf-audit-service/internal/models"
	"rcf-audit-service/internal/reconciler"
	"rcf-audit-service/internal/scoper"
	"rcf-audit-service/pkg/logger"
)

// DefaultTopDelays is the size of the worst-latency list.
const DefaultTopDelays = 10

// Delay is one matched ledger/gateway pair with its measured latency.
type Delay struct {
	RegistrationID string    `json:"registration_id"`
	LedgerID       string    `json:"ledger_id,omitempty"`
	IssuerName     string    `json:"issuer_name,omitempty"`
	RegisteredAt   time.Time `json:"registered_at"`
	AnnotatedAt    time.Time `json:"annotated_at"`

	// LatencyMinutes is annotation minus registration. Negative values are
	// anomalies: the ledger claims the invoice was annotated before the
	// gateway saw it.
	LatencyMinutes float64 `json:"latency_minutes"`
}

// MonthlyStat aggregates valid latencies by annotation month.
type MonthlyStat struct {
	Month         string  `json:"month"`
	Count         int     `json:"count"`
	MeanMinutes   float64 `json:"mean_minutes"`
	MedianMinutes float64 `json:"median_minutes"`
	MinMinutes    float64 `json:"min_minutes"`
	MaxMinutes    float64 `json:"max_minutes"`
}

// Result holds the latency analysis. Valid and anomalous measurements are
// never blended: every aggregate covers the valid set only.
type Result struct {
	Available bool `json:"available"`

	MatchedCount int `json:"matched_count"`
	ValidCount   int `json:"valid_count"`
	AnomalyCount int `json:"anomaly_count"`

	MeanMinutes   float64 `json:"mean_minutes"`
	MedianMinutes float64 `json:"median_minutes"`
	MinMinutes    float64 `json:"min_minutes"`
	MaxMinutes    float64 `json:"max_minutes"`

	Monthly   []MonthlyStat `json:"monthly"`
	TopDelays []Delay       `json:"top_delays"`
	Anomalies []Delay       `json:"anomalies"`
}

// Analyze joins the scoped electronic ledger with the scoped gateway registry
// on the registration identifier and measures latency in minutes. Rows
// missing either timestamp are dropped from the measurement. Soft-deleted
// ledger rows are excluded like in every other aggregate.
func Analyze(ds *reconciler.Dataset, topN int) *Result {
	log := logger.GetGlobalLogger().WithComponent("timing")
	if topN <= 0 {
		topN = DefaultTopDelays
	}

	// Registration timestamps by normalized identifier.
	registered := make(map[string]*models.GatewayInvoice)
	usableGateway := 0
	for _, inv := range ds.ScopedGateway {
		if !inv.RegistrationID.Valid || !inv.RegistrationDate.Valid {
			continue
		}
		usableGateway++
		key := models.NormalizeID(inv.RegistrationID.String)
		if _, exists := registered[key]; !exists {
			registered[key] = inv
		}
	}

	electronic := make([]*models.LedgerInvoice, 0)
	usableLedger := 0
	for _, inv := range scoper.ExcludeDeleted(ds.ScopedLedger) {
		if inv.IsPaper {
			continue
		}
		electronic = append(electronic, inv)
		if inv.AnnotationDate.Valid {
			usableLedger++
		}
	}

	if (len(ds.ScopedGateway) > 0 && usableGateway == 0) ||
		(len(electronic) > 0 && usableLedger == 0) {
		log.Warn("Latency analysis unavailable: sources carry no usable timestamps")
		return &Result{Available: false}
	}

	var valid, anomalies []Delay
	for _, inv := range electronic {
		if !inv.AnnotationDate.Valid {
			continue
		}
		gw, matched := registered[models.NormalizeID(inv.GatewayRef.String)]
		if !matched {
			continue
		}
		delay := Delay{
			RegistrationID: gw.RegistrationID.String,
			LedgerID:       inv.LedgerID.String,
			IssuerName:     inv.IssuerName.String,
			RegisteredAt:   gw.RegistrationDate.Time,
			AnnotatedAt:    inv.AnnotationDate.Time,
			LatencyMinutes: inv.AnnotationDate.Time.Sub(gw.RegistrationDate.Time).Minutes(),
		}
		if delay.LatencyMinutes < 0 {
			anomalies = append(anomalies, delay)
		} else {
			valid = append(valid, delay)
		}
	}

	result := &Result{
		Available:    true,
		MatchedCount: len(valid) + len(anomalies),
		ValidCount:   len(valid),
		AnomalyCount: len(anomalies),
		Anomalies:    anomalies,
	}

	if len(valid) > 0 {
		latencies := make([]float64, len(valid))
		for i, d := range valid {
			latencies[i] = d.LatencyMinutes
		}
		result.MeanMinutes = mean(latencies)
		result.MedianMinutes = median(latencies)
		result.MinMinutes, result.MaxMinutes = minMax(latencies)
		result.Monthly = monthlyStats(valid)
		result.TopDelays = topDelays(valid, topN)
	}

	log.WithFields(logger.Fields{
		"matched":   result.MatchedCount,
		"valid":     result.ValidCount,
		"anomalies": result.AnomalyCount,
	}).Info("Latency analysis complete")

	return result
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func minMax(values []float64) (float64, float64) {
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// monthlyStats groups valid latencies by annotation month, ascending.
func monthlyStats(valid []Delay) []MonthlyStat {
	byMonth := make(map[string][]float64)
	for _, d := range valid {
		month := d.AnnotatedAt.Format("2006-01")
		byMonth[month] = append(byMonth[month], d.LatencyMinutes)
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	stats := make([]MonthlyStat, 0, len(months))
	for _, month := range months {
		latencies := byMonth[month]
		min, max := minMax(latencies)
		stats = append(stats, MonthlyStat{
			Month:         month,
			Count:         len(latencies),
			MeanMinutes:   mean(latencies),
			MedianMinutes: median(latencies),
			MinMinutes:    min,
			MaxMinutes:    max,
		})
	}
	return stats
}

// topDelays returns the n worst latencies, descending, ties keeping input
// order.
func topDelays(valid []Delay, n int) []Delay {
	sorted := make([]Delay, len(valid))
	copy(sorted, valid)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].LatencyMinutes > sorted[j].LatencyMinutes
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
