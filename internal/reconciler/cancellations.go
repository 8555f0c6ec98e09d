package reconciler

import (
	"strings"

	"rcf-audit-service/internal/models"
	"rcf-audit-service/pkg/logger"
)

// CancellationAnalysis summarizes the scoped cancellation requests against
// the ledger. Available is false when no cancellation source was provided.
type CancellationAnalysis struct {
	Available bool `json:"available"`

	Total              int `json:"total"`
	RegisteredInLedger int `json:"registered_in_ledger"`
	WithComment        int `json:"with_comment"`

	Requests []*models.CancellationRequest `json:"requests,omitempty"`
}

// AnalyzeCancellations counts the scoped cancellation requests, how many of
// them reference an invoice annotated in the ledger, and how many carry a
// justification comment.
func AnalyzeCancellations(ds *Dataset) *CancellationAnalysis {
	if !ds.HasCancellations {
		return &CancellationAnalysis{Available: false}
	}

	analysis := &CancellationAnalysis{
		Available: true,
		Total:     len(ds.ScopedCancellations),
		Requests:  ds.ScopedCancellations,
	}

	for _, req := range ds.ScopedCancellations {
		if req.RegistrationID.Valid {
			key := models.NormalizeID(req.RegistrationID.String)
			if _, annotated := ds.GatewayRefIndex[key]; annotated {
				analysis.RegisteredInLedger++
			}
		}
		if req.Comment.Valid && strings.TrimSpace(req.Comment.String) != "" {
			analysis.WithComment++
		}
	}

	logger.GetGlobalLogger().WithComponent("reconciler").WithFields(logger.Fields{
		"total":        analysis.Total,
		"in_ledger":    analysis.RegisteredInLedger,
		"with_comment": analysis.WithComment,
	}).Info("Cancellation analysis complete")

	return analysis
}
