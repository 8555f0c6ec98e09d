package timing

import (
	"math"
	"testing"
	"time"

	"rcf-audit-service/internal/models"
	"rcf-audit-service/internal/reconciler"
)

func ts(day, hour, min int) time.Time {
	return time.Date(2025, 3, day, hour, min, 0, 0, time.UTC)
}

func electronicInvoice(ref string, annotated time.Time) *models.LedgerInvoice {
	return &models.LedgerInvoice{
		LedgerID:       models.NewString("L-" + ref),
		GatewayRef:     models.NewString(ref),
		AnnotationDate: models.NewTime(annotated),
	}
}

func gatewayInvoice(id string, registered time.Time) *models.GatewayInvoice {
	return &models.GatewayInvoice{
		RegistrationID:   models.NewString(id),
		RegistrationDate: models.NewTime(registered),
	}
}

func TestAnalyzeSeparatesValidAndAnomalous(t *testing.T) {
	ds := &reconciler.Dataset{
		ScopedLedger: []*models.LedgerInvoice{
			// 120 minutes after registration.
			electronicInvoice("G1", ts(1, 12, 0)),
			// Annotated 13 hours BEFORE registration: -780 minutes.
			electronicInvoice("G2", ts(1, 9, 0)),
			// 30 minutes.
			electronicInvoice("G3", ts(2, 10, 30)),
		},
		ScopedGateway: []*models.GatewayInvoice{
			gatewayInvoice("G1", ts(1, 10, 0)),
			gatewayInvoice("G2", ts(1, 22, 0)),
			gatewayInvoice("G3", ts(2, 10, 0)),
		},
	}

	result := Analyze(ds, 0)
	if !result.Available {
		t.Fatal("analysis must be available")
	}
	if result.MatchedCount != 3 || result.ValidCount != 2 || result.AnomalyCount != 1 {
		t.Fatalf("unexpected partition: matched=%d valid=%d anomalies=%d",
			result.MatchedCount, result.ValidCount, result.AnomalyCount)
	}

	if result.Anomalies[0].RegistrationID != "G2" {
		t.Errorf("unexpected anomaly %q", result.Anomalies[0].RegistrationID)
	}
	if result.Anomalies[0].LatencyMinutes != -780 {
		t.Errorf("expected -780 minutes, got %v", result.Anomalies[0].LatencyMinutes)
	}

	// Aggregates cover the valid set only: (120+30)/2 = 75.
	if math.Abs(result.MeanMinutes-75) > 1e-9 {
		t.Errorf("mean over valid set = %v, want 75", result.MeanMinutes)
	}
	if result.MinMinutes != 30 || result.MaxMinutes != 120 {
		t.Errorf("min/max = %v/%v, want 30/120", result.MinMinutes, result.MaxMinutes)
	}
}

func TestAnalyzeDropsRowsMissingTimestamps(t *testing.T) {
	noDate := &models.LedgerInvoice{
		GatewayRef: models.NewString("G1"),
	}
	ds := &reconciler.Dataset{
		ScopedLedger: []*models.LedgerInvoice{
			noDate,
			electronicInvoice("G2", ts(1, 12, 0)),
		},
		ScopedGateway: []*models.GatewayInvoice{
			gatewayInvoice("G1", ts(1, 10, 0)),
			gatewayInvoice("G2", ts(1, 10, 0)),
			{RegistrationID: models.NewString("G3")},
		},
	}

	result := Analyze(ds, 0)
	if !result.Available {
		t.Fatal("analysis must be available")
	}
	if result.MatchedCount != 1 {
		t.Errorf("expected 1 measured pair, got %d", result.MatchedCount)
	}
}

func TestAnalyzeUnavailableWithoutTimestamps(t *testing.T) {
	ds := &reconciler.Dataset{
		ScopedLedger: []*models.LedgerInvoice{
			electronicInvoice("G1", ts(1, 12, 0)),
		},
		ScopedGateway: []*models.GatewayInvoice{
			{RegistrationID: models.NewString("G1")},
		},
	}

	result := Analyze(ds, 0)
	if result.Available {
		t.Error("gateway without registration dates must yield an unavailable result")
	}
}

func TestAnalyzeExcludesDeletedAndPaper(t *testing.T) {
	deleted := electronicInvoice("G1", ts(1, 12, 0))
	deleted.State = models.NewString("BORRADA")
	paper := &models.LedgerInvoice{
		IsPaper:        true,
		AnnotationDate: models.NewTime(ts(1, 12, 0)),
	}

	ds := &reconciler.Dataset{
		ScopedLedger: []*models.LedgerInvoice{deleted, paper, electronicInvoice("G2", ts(1, 11, 0))},
		ScopedGateway: []*models.GatewayInvoice{
			gatewayInvoice("G1", ts(1, 10, 0)),
			gatewayInvoice("G2", ts(1, 10, 0)),
		},
	}

	result := Analyze(ds, 0)
	if result.MatchedCount != 1 {
		t.Errorf("deleted and paper rows must not be measured, matched=%d", result.MatchedCount)
	}
}

func TestMonthlyAndTopDelays(t *testing.T) {
	ds := &reconciler.Dataset{
		ScopedLedger: []*models.LedgerInvoice{
			electronicInvoice("G1", time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)),
			electronicInvoice("G2", time.Date(2025, 1, 20, 14, 0, 0, 0, time.UTC)),
			electronicInvoice("G3", time.Date(2025, 2, 5, 9, 0, 0, 0, time.UTC)),
		},
		ScopedGateway: []*models.GatewayInvoice{
			gatewayInvoice("G1", time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)),  // 120m
			gatewayInvoice("G2", time.Date(2025, 1, 20, 13, 0, 0, 0, time.UTC)),  // 60m
			gatewayInvoice("G3", time.Date(2025, 2, 5, 8, 30, 0, 0, time.UTC)),   // 30m
		},
	}

	result := Analyze(ds, 2)
	if len(result.Monthly) != 2 {
		t.Fatalf("expected 2 monthly buckets, got %d", len(result.Monthly))
	}
	if result.Monthly[0].Month != "2025-01" || result.Monthly[0].Count != 2 {
		t.Errorf("unexpected first bucket: %+v", result.Monthly[0])
	}
	if result.Monthly[0].MeanMinutes != 90 {
		t.Errorf("january mean = %v, want 90", result.Monthly[0].MeanMinutes)
	}

	if len(result.TopDelays) != 2 {
		t.Fatalf("expected top-2 truncation, got %d", len(result.TopDelays))
	}
	if result.TopDelays[0].RegistrationID != "G1" || result.TopDelays[1].RegistrationID != "G2" {
		t.Errorf("top delays out of order: %+v", result.TopDelays)
	}
}

func TestMedian(t *testing.T) {
	if got := median([]float64{3, 1, 2}); got != 2 {
		t.Errorf("odd median = %v, want 2", got)
	}
	if got := median([]float64{4, 1, 2, 3}); got != 2.5 {
		t.Errorf("even median = %v, want 2.5", got)
	}
}
