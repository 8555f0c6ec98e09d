package rules

import (
	"sort"
	"strings"
	"time"

	"rcf-audit-service/internal/models"
	"rcf-audit-service/pkg/errors"
	"rcf-audit-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Regulatory defaults: the e-invoicing obligation and the gateway format
// validations took effect on these dates, and paper invoices above the
// threshold fell under the obligation.
var (
	defaultObligatoryDate = time.Date(2015, 1, 15, 0, 0, 0, 0, time.UTC)
	defaultValidationDate = time.Date(2015, 10, 15, 0, 0, 0, 0, time.UTC)
	defaultPaperThreshold = decimal.NewFromInt(3000)
)

// Config holds the rule engine parameters.
type Config struct {
	// ValidationEffectiveDate bounds the compliance population: only
	// invoices issued after it were subject to the format validations.
	ValidationEffectiveDate time.Time `json:"validation_effective_date"`

	// ObligatoryDate is when the e-invoicing obligation took effect.
	ObligatoryDate time.Time `json:"obligatory_date"`

	// PaperThreshold is the taxable base above which paper invoicing is
	// suspect for legal persons.
	PaperThreshold decimal.Decimal `json:"paper_threshold"`
}

// DefaultConfig returns the regulatory defaults.
func DefaultConfig() *Config {
	return &Config{
		ValidationEffectiveDate: defaultValidationDate,
		ObligatoryDate:          defaultObligatoryDate,
		PaperThreshold:          defaultPaperThreshold,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ValidationEffectiveDate.IsZero() {
		return errors.ConfigurationError(errors.CodeMissingConfig, "validation_effective_date", nil, nil)
	}
	if c.ObligatoryDate.IsZero() {
		return errors.ConfigurationError(errors.CodeMissingConfig, "obligatory_date", nil, nil)
	}
	if c.PaperThreshold.IsNegative() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "paper_threshold", c.PaperThreshold, nil)
	}
	return nil
}

// Engine evaluates the compliance clauses over the scoped ledger.
type Engine struct {
	config  *Config
	mapping *ClauseMapping
	logger  logger.Logger
}

// NewEngine creates a rule engine. The mapping may be nil, in which case
// Evaluate degrades to an unavailable result instead of failing the run.
func NewEngine(config *Config, mapping *ClauseMapping) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		config:  config,
		mapping: mapping,
		logger:  logger.GetGlobalLogger().WithComponent("rules"),
	}, nil
}

// ClauseStat is the attribution of one clause over the validated population.
type ClauseStat struct {
	Clause string `json:"clause"`
	Name   string `json:"name"`
	Count  int    `json:"count"`

	// PctOfPopulation is Count over the validated population, in percent.
	PctOfPopulation float64 `json:"pct_of_population"`

	// Incumbents are the invoices attributed to this clause.
	Incumbents []*models.LedgerInvoice `json:"incumbents,omitempty"`
}

// ComplianceResult is the clause evaluation over the validated population.
//
// TotalIncumbents sums the per-clause counts: an invoice whose motive prefix
// is mapped to several clauses would be counted once per clause. With the
// first-eight-characters rule a motive matches exactly one prefix, so in
// practice the sum equals the number of distinct incumbent invoices; the
// additive definition is kept because the per-clause percentages must add up
// to the non-compliance percentage.
type ComplianceResult struct {
	Available bool `json:"available"`

	PopulationSize  int          `json:"population_size"`
	TotalIncumbents int          `json:"total_incumbents"`
	CompliancePct   float64      `json:"compliance_pct"`
	Clauses         []ClauseStat `json:"clauses"`
}

// Evaluate attributes rejection motives to clauses over the validated
// population: scoped electronic invoices issued after the validation
// effective date. Soft-deleted invoices stay IN this population; a deleted
// rejection still documents a historical incumbence.
func (e *Engine) Evaluate(scopedLedger []*models.LedgerInvoice) *ComplianceResult {
	if e.mapping == nil {
		e.logger.Warn("No clause mapping loaded; compliance evaluation unavailable")
		return &ComplianceResult{Available: false}
	}

	// Step 1: Bound the validated population
	var population []*models.LedgerInvoice
	for _, inv := range scopedLedger {
		if inv.IsPaper {
			continue
		}
		if !inv.IssueDate.Valid || !inv.IssueDate.Time.After(e.config.ValidationEffectiveDate) {
			continue
		}
		population = append(population, inv)
	}

	result := &ComplianceResult{
		Available:      true,
		PopulationSize: len(population),
	}

	// Step 2: Attribute motives to clauses
	incumbents := make(map[string][]*models.LedgerInvoice)
	for _, inv := range population {
		if !inv.RejectionMotive.Valid {
			continue
		}
		clause, matched := e.mapping.Lookup(inv.RejectionMotive.String)
		if !matched {
			continue
		}
		incumbents[clause] = append(incumbents[clause], inv)
	}

	// Step 3: Per-clause stats in fixed clause order
	nonCompliancePct := 0.0
	for _, clause := range ClauseOrder {
		stat := ClauseStat{
			Clause:     clause,
			Name:       ClauseName(clause),
			Count:      len(incumbents[clause]),
			Incumbents: incumbents[clause],
		}
		if result.PopulationSize > 0 {
			stat.PctOfPopulation = 100 * float64(stat.Count) / float64(result.PopulationSize)
		}
		nonCompliancePct += stat.PctOfPopulation
		result.TotalIncumbents += stat.Count
		result.Clauses = append(result.Clauses, stat)
	}

	// An empty population has nothing to breach.
	result.CompliancePct = 100 - nonCompliancePct

	e.logger.WithFields(logger.Fields{
		"population": result.PopulationSize,
		"incumbents": result.TotalIncumbents,
		"compliance": result.CompliancePct,
	}).Info("Compliance evaluation complete")

	return result
}

// MotiveCount is one raw rejection motive with its frequency.
type MotiveCount struct {
	Motive string `json:"motive"`
	Count  int    `json:"count"`
}

// RejectionAnalysis groups rejected and soft-deleted invoices by their raw
// motive text.
type RejectionAnalysis struct {
	Total         int           `json:"total"`
	WithoutMotive int           `json:"without_motive"`
	Motives       []MotiveCount `json:"motives"`
}

// AnalyzeRejections tallies the motives of every scoped invoice in rejected
// or soft-deleted state, most frequent first, ties alphabetically.
func AnalyzeRejections(scopedLedger []*models.LedgerInvoice) *RejectionAnalysis {
	analysis := &RejectionAnalysis{}
	counts := make(map[string]int)

	for _, inv := range scopedLedger {
		if !inv.IsRejected() && !inv.IsDeleted() {
			continue
		}
		analysis.Total++
		if !inv.RejectionMotive.Valid || strings.TrimSpace(inv.RejectionMotive.String) == "" {
			analysis.WithoutMotive++
			continue
		}
		counts[strings.TrimSpace(inv.RejectionMotive.String)]++
	}

	for motive, count := range counts {
		analysis.Motives = append(analysis.Motives, MotiveCount{Motive: motive, Count: count})
	}
	sort.Slice(analysis.Motives, func(i, j int) bool {
		if analysis.Motives[i].Count != analysis.Motives[j].Count {
			return analysis.Motives[i].Count > analysis.Motives[j].Count
		}
		return analysis.Motives[i].Motive < analysis.Motives[j].Motive
	})

	return analysis
}
