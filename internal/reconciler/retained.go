package reconciler

import (
	"rcf-audit-service/internal/models"
	"rcf-audit-service/pkg/logger"
)

// RetainedResult lists the gateway invoices that never reached the ledger.
// Available distinguishes "could not be computed" from "computed and empty":
// without usable identifiers on the gateway side the detection is meaningless
// and must not be rendered as a clean zero.
type RetainedResult struct {
	Available bool                     `json:"available"`
	Invoices  []*models.GatewayInvoice `json:"invoices"`
	Total     int                      `json:"total"`

	// Unidentifiable counts scoped gateway rows skipped for lack of a
	// registration identifier.
	Unidentifiable int `json:"unidentifiable,omitempty"`
}

// FindRetained reports the scoped gateway invoices whose registration
// identifier is absent from the unscoped ledger index. An invoice annotated
// under any fiscal year counts as present, so a ledger entry from a prior
// period never shows up as retained. Input order is preserved. A missing
// identifier field on either side makes the detection unavailable: a ledger
// without a gateway reference column would otherwise report every gateway
// invoice as retained.
func FindRetained(ds *Dataset) *RetainedResult {
	log := logger.GetGlobalLogger().WithComponent("reconciler")

	if !ds.LedgerHasGatewayRef {
		log.Warn("Ledger carries no gateway reference column; retained detection unavailable")
		return &RetainedResult{Available: false}
	}

	result := &RetainedResult{}

	identifiable := 0
	for _, inv := range ds.ScopedGateway {
		if !inv.RegistrationID.Valid || models.IsNullMarker(inv.RegistrationID.String) {
			result.Unidentifiable++
			continue
		}
		identifiable++
		key := models.NormalizeID(inv.RegistrationID.String)
		if _, annotated := ds.GatewayRefIndex[key]; !annotated {
			result.Invoices = append(result.Invoices, inv)
		}
	}

	if identifiable == 0 && len(ds.ScopedGateway) > 0 {
		log.Warn("Gateway registry carries no registration identifiers; retained detection unavailable")
		return &RetainedResult{Available: false, Unidentifiable: result.Unidentifiable}
	}

	result.Available = true
	result.Total = len(result.Invoices)

	log.WithFields(logger.Fields{
		"gateway_rows": len(ds.ScopedGateway),
		"retained":     result.Total,
	}).Info("Retained invoice detection complete")

	return result
}
