// Package reconciler owns the audit session: it loads and scopes the four
// record sets once, caches them behind a content fingerprint, and runs the
// cross-referencing computations that need more than one source.
package reconciler

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"rcf-audit-service/internal/models"
	"rcf-audit-service/internal/parsers"
	"rcf-audit-service/internal/scoper"
	"rcf-audit-service/pkg/errors"
	"rcf-audit-service/pkg/logger"
)

// Source names used in load failure diagnostics.
const (
	SourceLedger        = "ledger"
	SourceGateway       = "gateway"
	SourceCancellations = "cancellations"
	SourceStateHistory  = "state-history"
)

// Config holds the session parameters.
type Config struct {
	// AuditedYear is the fiscal year the audit runs over.
	AuditedYear int `json:"audited_year"`

	// MaxRows is a per-source row budget; 0 disables it. Oversized
	// workbooks fail fast at load instead of degrading mid-run.
	MaxRows int `json:"max_rows"`
}

// DefaultConfig returns a session configuration with the row budget disabled.
func DefaultConfig() *Config {
	return &Config{MaxRows: 0}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxRows < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "max_rows", c.MaxRows, nil).
			WithSuggestion("use 0 to disable the row budget")
	}
	return (&scoper.Config{AuditedYear: c.AuditedYear}).Validate()
}

// LoadRequest names the four source workbooks. Ledger and gateway are
// required; cancellations and state history may be empty, which loads an
// empty set and degrades the dependent analyses.
type LoadRequest struct {
	LedgerPath        string `json:"ledger_path"`
	GatewayPath       string `json:"gateway_path"`
	CancellationsPath string `json:"cancellations_path,omitempty"`
	StateHistoryPath  string `json:"state_history_path,omitempty"`
}

// Validate checks that the required sources are named.
func (r *LoadRequest) Validate() error {
	if r.LedgerPath == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "ledger path", nil, nil)
	}
	if r.GatewayPath == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "gateway path", nil, nil)
	}
	return nil
}

// Dataset is the immutable loaded state every downstream component reads.
type Dataset struct {
	// Ledger is the full unscoped ledger; GatewayRefIndex is built from it.
	Ledger []*models.LedgerInvoice

	ScopedLedger        []*models.LedgerInvoice
	ScopedGateway       []*models.GatewayInvoice
	ScopedCancellations []*models.CancellationRequest
	ScopedStateHistory  []*models.StateChangeEvent

	// GatewayRefIndex maps normalized gateway references of the UNSCOPED
	// ledger to their invoices.
	GatewayRefIndex map[string]*models.LedgerInvoice

	// LedgerHasGatewayRef records whether the ledger source carries a
	// gateway reference column at all. Without it the index is empty for
	// structural reasons and retained detection is unavailable.
	LedgerHasGatewayRef bool

	// HasCancellations / HasStateHistory record whether the optional
	// sources were provided, so an absent source is distinguishable from
	// an empty one.
	HasCancellations bool
	HasStateHistory  bool

	// Fingerprint is the sha256 over the source files, the cache key.
	Fingerprint string
}

// AuditSession loads the dataset and caches it per source fingerprint.
// It is not safe for concurrent use; the engine is single-threaded.
type AuditSession struct {
	config  *Config
	scoper  *scoper.Scoper
	logger  logger.Logger
	dataset *Dataset
}

// NewSession creates an audit session.
func NewSession(config *Config) (*AuditSession, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sc, err := scoper.New(&scoper.Config{AuditedYear: config.AuditedYear})
	if err != nil {
		return nil, err
	}

	return &AuditSession{
		config: config,
		scoper: sc,
		logger: logger.GetGlobalLogger().WithComponent("session"),
	}, nil
}

// Dataset returns the currently loaded dataset, or nil before the first Load.
func (s *AuditSession) Dataset() *Dataset {
	return s.dataset
}

// SupplierRanking returns the top-N issuers of the loaded scoped ledger.
func (s *AuditSession) SupplierRanking(n int) []scoper.SupplierStat {
	if s.dataset == nil {
		return nil
	}
	return s.scoper.SupplierRanking(s.dataset.ScopedLedger, n)
}

// Invalidate drops the cached dataset so the next Load rereads the sources.
func (s *AuditSession) Invalidate() {
	s.dataset = nil
}

// Load reads, normalizes and scopes the four sources. When the source files
// are unchanged since the previous Load, the cached dataset is returned
// without touching the parsers. A failure on any source is fatal and names
// the source in the diagnostic.
func (s *AuditSession) Load(req *LoadRequest) (*Dataset, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fingerprint, err := fingerprintSources(
		req.LedgerPath, req.GatewayPath, req.CancellationsPath, req.StateHistoryPath)
	if err != nil {
		return nil, err
	}

	if s.dataset != nil && s.dataset.Fingerprint == fingerprint {
		s.logger.WithField("fingerprint", fingerprint).Debug("Reusing cached dataset")
		return s.dataset, nil
	}

	// Step 1: Load and normalize each source
	ledger, hasGatewayRef, err := parsers.LoadLedger(req.LedgerPath, s.config.MaxRows)
	if err != nil {
		return nil, annotateSource(err, SourceLedger, req.LedgerPath)
	}

	gateway, err := parsers.LoadGateway(req.GatewayPath, s.config.MaxRows)
	if err != nil {
		return nil, annotateSource(err, SourceGateway, req.GatewayPath)
	}

	var cancellations []*models.CancellationRequest
	if req.CancellationsPath != "" {
		cancellations, err = parsers.LoadCancellations(req.CancellationsPath, s.config.MaxRows)
		if err != nil {
			return nil, annotateSource(err, SourceCancellations, req.CancellationsPath)
		}
	}

	var stateHistory []*models.StateChangeEvent
	if req.StateHistoryPath != "" {
		stateHistory, err = parsers.LoadStateHistory(req.StateHistoryPath, s.config.MaxRows)
		if err != nil {
			return nil, annotateSource(err, SourceStateHistory, req.StateHistoryPath)
		}
	}

	// Step 2: Classify and scope
	s.scoper.Classify(ledger)

	dataset := &Dataset{
		Ledger:              ledger,
		ScopedLedger:        s.scoper.ScopeLedger(ledger),
		ScopedGateway:       s.scoper.ScopeGateway(gateway),
		ScopedCancellations: s.scoper.ScopeCancellations(cancellations),
		ScopedStateHistory:  s.scoper.ScopeStateHistory(stateHistory),
		LedgerHasGatewayRef: hasGatewayRef,
		HasCancellations:    req.CancellationsPath != "",
		HasStateHistory:     req.StateHistoryPath != "",
		Fingerprint:         fingerprint,
	}

	// Step 3: Build the unscoped reference index
	dataset.GatewayRefIndex = scoper.BuildGatewayRefIndex(ledger)

	s.logger.WithFields(logger.Fields{
		"ledger_rows":    len(ledger),
		"scoped_ledger":  len(dataset.ScopedLedger),
		"scoped_gateway": len(dataset.ScopedGateway),
		"indexed_refs":   len(dataset.GatewayRefIndex),
		"fingerprint":    fingerprint,
	}).Info("Dataset loaded")

	s.dataset = dataset
	return dataset, nil
}

// annotateSource tags a load failure with the audit source it came from,
// keeping the original category and code intact.
func annotateSource(err error, source, path string) error {
	if auditErr, ok := errors.AsAuditError(err); ok {
		return auditErr.WithContext("source", source)
	}
	return errors.SourceError(source, path, err)
}

// fingerprintSources hashes the content of the given files into one cache
// key. Empty paths contribute a fixed marker so adding or removing an
// optional source changes the key.
func fingerprintSources(paths ...string) (string, error) {
	h := sha256.New()
	for _, path := range paths {
		if path == "" {
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{1})
		h.Write([]byte(path))
		h.Write([]byte{0})

		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return "", errors.FileError(errors.CodeFileNotFound, path, err)
			}
			return "", errors.FileError(errors.CodeFilePermission, path, err)
		}
		if _, err := io.Copy(h, file); err != nil {
			file.Close()
			return "", errors.FileError(errors.CodeFileCorrupted, path, err)
		}
		file.Close()
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
