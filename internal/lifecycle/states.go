// Package lifecycle tallies gateway state-change events into a distribution
// over the known processing states.
package lifecycle

import (
	"sort"
	"strings"

	"rcf-audit-service/internal/models"
)

// stateLabels names the gateway processing state codes.
var stateLabels = map[string]string{
	"1200": "Registered",
	"1300": "Registered in RCF",
	"1400": "Verified in RCF",
	"2100": "Received at destination",
	"2300": "Approved",
	"2400": "Obligation accounted",
	"2500": "Paid",
	"2600": "Rejected",
	"3100": "Canceled",
}

// StateLabel returns the human-readable label of a state code, or the code
// itself when unknown.
func StateLabel(code string) string {
	if label, known := stateLabels[code]; known {
		return label
	}
	return code
}

// StateCount is one state code with its label and event count.
type StateCount struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// DistributionResult tallies state-change events by state code.
type DistributionResult struct {
	Available bool `json:"available"`

	Total  int          `json:"total"`
	NoCode int          `json:"no_code"`
	States []StateCount `json:"states"`
}

// Distribution counts the scoped state-change events per state code,
// ascending by code so the lifecycle reads in rough chronological order.
// Unknown codes are kept verbatim rather than dropped.
func Distribution(events []*models.StateChangeEvent, available bool) *DistributionResult {
	if !available {
		return &DistributionResult{Available: false}
	}

	result := &DistributionResult{Available: true, Total: len(events)}
	counts := make(map[string]int)

	for _, event := range events {
		if !event.StateCode.Valid || strings.TrimSpace(event.StateCode.String) == "" {
			result.NoCode++
			continue
		}
		counts[strings.TrimSpace(event.StateCode.String)]++
	}

	for code, count := range counts {
		result.States = append(result.States, StateCount{
			Code:  code,
			Label: StateLabel(code),
			Count: count,
		})
	}
	sort.Slice(result.States, func(i, j int) bool {
		return result.States[i].Code < result.States[j].Code
	})

	return result
}
