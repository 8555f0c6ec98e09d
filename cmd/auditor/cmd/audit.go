package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rcf-audit-service/cmd/auditor/config"
	"rcf-audit-service/internal/lifecycle"
	"rcf-audit-service/internal/reconciler"
	"rcf-audit-service/internal/reporter"
	"rcf-audit-service/internal/rules"
	"rcf-audit-service/internal/timing"
	"rcf-audit-service/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flags for the audit command
var (
	ledgerFile        string
	gatewayFile       string
	cancellationsFile string
	statesFile        string
	auditedYear       int
	clauseMapping     string
	entityName        string
	validationDate    string
	obligatoryDate    string
	paperThreshold    float64
	outputFormat      string
	outputFile        string
	maxRows           int
	topSuppliers      int
	topDelays         int
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit the invoice ledger against the gateway registry",
	Long: `Audit cross-references the internal invoice ledger with the e-invoicing
gateway registry for the audited fiscal year.

This command requires:
- The invoice ledger export (xlsx or csv)
- The gateway registry export (xlsx or csv)
- The audited fiscal year

Optional sources enrich the report: cancellation requests, state-change
history, and the clause mapping file for compliance attribution.

Examples:
  # Basic audit
  auditor audit --ledger-file rcf.xlsx --gateway-file face.xlsx --year 2025

  # Full audit with all sources
  auditor audit --ledger-file rcf.xlsx --gateway-file face.xlsx --year 2025 \
    --cancellations-file anulaciones.xlsx --states-file estados.xlsx \
    --clause-mapping clauses.csv --entity "Ayuntamiento de Ejemplo"

  # JSON report to a file
  auditor audit --ledger-file rcf.csv --gateway-file face.csv --year 2025 \
    --output-format json --output-file report.json

  # Bound the run for oversized exports
  auditor audit --ledger-file rcf.xlsx --gateway-file face.xlsx --year 2025 \
    --max-rows 500000`,

	PreRunE: validateAuditFlags,
	RunE:    runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	// Required flags
	auditCmd.Flags().StringVarP(&ledgerFile, "ledger-file", "l", "", "path to the invoice ledger export (required)")
	auditCmd.Flags().StringVarP(&gatewayFile, "gateway-file", "g", "", "path to the gateway registry export (required)")
	auditCmd.Flags().IntVarP(&auditedYear, "year", "y", 0, "audited fiscal year (required)")

	// Optional sources
	auditCmd.Flags().StringVar(&cancellationsFile, "cancellations-file", "", "path to the cancellation request export")
	auditCmd.Flags().StringVar(&statesFile, "states-file", "", "path to the state-change history export")
	auditCmd.Flags().StringVarP(&clauseMapping, "clause-mapping", "m", "", "path to the prefix,clause mapping csv")

	// Rule engine overrides
	auditCmd.Flags().StringVar(&validationDate, "validation-date", "", "validation effective date override (YYYY-MM-DD)")
	auditCmd.Flags().StringVar(&obligatoryDate, "obligatory-date", "", "e-invoicing obligation date override (YYYY-MM-DD)")
	auditCmd.Flags().Float64Var(&paperThreshold, "paper-threshold", 0, "paper obligation taxable-base threshold override")

	// Output flags
	auditCmd.Flags().StringVar(&entityName, "entity", "", "audited entity name for the report header")
	auditCmd.Flags().StringVarP(&outputFormat, "output-format", "f", "console", "output format: console, json, csv")
	auditCmd.Flags().StringVarP(&outputFile, "output-file", "o", "", "output file path (default: stdout)")
	auditCmd.Flags().IntVar(&topSuppliers, "top-suppliers", 10, "suppliers listed in the ranking")
	auditCmd.Flags().IntVar(&topDelays, "top-delays", timing.DefaultTopDelays, "worst latencies listed")

	// Budget flags
	auditCmd.Flags().IntVar(&maxRows, "max-rows", 0, "per-source row budget, 0 disables")

	// Mark required flags
	auditCmd.MarkFlagRequired("ledger-file")
	auditCmd.MarkFlagRequired("gateway-file")
	auditCmd.MarkFlagRequired("year")

	// Bind flags to viper
	viper.BindPFlag("ledger-file", auditCmd.Flags().Lookup("ledger-file"))
	viper.BindPFlag("gateway-file", auditCmd.Flags().Lookup("gateway-file"))
	viper.BindPFlag("cancellations-file", auditCmd.Flags().Lookup("cancellations-file"))
	viper.BindPFlag("states-file", auditCmd.Flags().Lookup("states-file"))
	viper.BindPFlag("year", auditCmd.Flags().Lookup("year"))
	viper.BindPFlag("clause-mapping", auditCmd.Flags().Lookup("clause-mapping"))
	viper.BindPFlag("entity", auditCmd.Flags().Lookup("entity"))
	viper.BindPFlag("validation-date", auditCmd.Flags().Lookup("validation-date"))
	viper.BindPFlag("obligatory-date", auditCmd.Flags().Lookup("obligatory-date"))
	viper.BindPFlag("paper-threshold", auditCmd.Flags().Lookup("paper-threshold"))
	viper.BindPFlag("output-format", auditCmd.Flags().Lookup("output-format"))
	viper.BindPFlag("output-file", auditCmd.Flags().Lookup("output-file"))
	viper.BindPFlag("top-suppliers", auditCmd.Flags().Lookup("top-suppliers"))
	viper.BindPFlag("top-delays", auditCmd.Flags().Lookup("top-delays"))
	viper.BindPFlag("max-rows", auditCmd.Flags().Lookup("max-rows"))
}

func validateAuditFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file)
	ledgerFile = viper.GetString("ledger-file")
	gatewayFile = viper.GetString("gateway-file")
	cancellationsFile = viper.GetString("cancellations-file")
	statesFile = viper.GetString("states-file")
	auditedYear = viper.GetInt("year")
	clauseMapping = viper.GetString("clause-mapping")
	entityName = viper.GetString("entity")
	validationDate = viper.GetString("validation-date")
	obligatoryDate = viper.GetString("obligatory-date")
	paperThreshold = viper.GetFloat64("paper-threshold")
	outputFormat = viper.GetString("output-format")
	outputFile = viper.GetString("output-file")
	topSuppliers = viper.GetInt("top-suppliers")
	topDelays = viper.GetInt("top-delays")
	maxRows = viper.GetInt("max-rows")

	// Validate required flags
	if ledgerFile == "" {
		return fmt.Errorf("ledger-file is required")
	}
	if gatewayFile == "" {
		return fmt.Errorf("gateway-file is required")
	}
	if auditedYear == 0 {
		return fmt.Errorf("year is required")
	}

	// Validate file existence
	if err := validateFileExists(ledgerFile, "ledger file"); err != nil {
		return err
	}
	if err := validateFileExists(gatewayFile, "gateway file"); err != nil {
		return err
	}
	for _, optional := range []struct{ path, desc string }{
		{cancellationsFile, "cancellations file"},
		{statesFile, "states file"},
		{clauseMapping, "clause mapping file"},
	} {
		if optional.path == "" {
			continue
		}
		if err := validateFileExists(optional.path, optional.desc); err != nil {
			return err
		}
	}

	// Validate output format
	validFormats := map[string]bool{"console": true, "json": true, "csv": true}
	if !validFormats[outputFormat] {
		return fmt.Errorf("invalid output format '%s'. Valid formats: console, json, csv", outputFormat)
	}

	// Validate date overrides
	if validationDate != "" {
		if _, err := time.Parse("2006-01-02", validationDate); err != nil {
			return fmt.Errorf("invalid validation date format. Use YYYY-MM-DD: %w", err)
		}
	}
	if obligatoryDate != "" {
		if _, err := time.Parse("2006-01-02", obligatoryDate); err != nil {
			return fmt.Errorf("invalid obligatory date format. Use YYYY-MM-DD: %w", err)
		}
	}

	if paperThreshold < 0 {
		return fmt.Errorf("paper threshold cannot be negative")
	}
	if maxRows < 0 {
		return fmt.Errorf("max rows cannot be negative")
	}

	// Validate output file directory exists if specified
	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return fmt.Errorf("output directory does not exist: %s", dir)
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%s does not exist: %s", description, filePath)
	}
	if err != nil {
		return fmt.Errorf("error accessing %s: %w", description, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, expected a file: %s", description, filePath)
	}
	return nil
}

func runAudit(cmd *cobra.Command, args []string) error {
	if viper.GetBool("verbose") {
		debugLogger, err := logger.NewLogger(logger.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to configure logging: %w", err)
		}
		logger.SetGlobalLogger(debugLogger)
		fmt.Fprintf(os.Stderr, "Starting audit for fiscal year %d...\n", auditedYear)
	}

	// Create the session and load the dataset
	session, err := reconciler.NewSession(config.CreateSessionConfig(auditedYear, maxRows))
	if err != nil {
		return err
	}

	dataset, err := session.Load(&reconciler.LoadRequest{
		LedgerPath:        ledgerFile,
		GatewayPath:       gatewayFile,
		CancellationsPath: cancellationsFile,
		StateHistoryPath:  statesFile,
	})
	if err != nil {
		return err
	}

	// Load the clause mapping if provided; an invalid mapping is fatal, a
	// missing one degrades the compliance section.
	var mapping *rules.ClauseMapping
	if clauseMapping != "" {
		mapping, err = rules.LoadClauseMapping(clauseMapping)
		if err != nil {
			return err
		}
	}

	rulesConfig, err := config.CreateRulesConfig(validationDate, obligatoryDate, paperThreshold)
	if err != nil {
		return err
	}
	engine, err := rules.NewEngine(rulesConfig, mapping)
	if err != nil {
		return err
	}

	// Run every analysis over the shared dataset
	report := buildReport(session, dataset, engine)

	// Generate the report
	reportConfig := config.CreateReportConfig(outputFormat, true)
	reportGenerator, err := reporter.NewReportGenerator(reportConfig)
	if err != nil {
		return fmt.Errorf("failed to create report generator: %w", err)
	}

	var output *os.File
	if outputFile != "" {
		output, err = os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer output.Close()
	} else {
		output = os.Stdout
	}

	if err := reportGenerator.GenerateReport(report, output); err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "\nAudit completed successfully.\n")
		fmt.Fprintf(os.Stderr, "Ledger rows: %d (%d in scope), gateway rows in scope: %d.\n",
			report.LedgerTotal, report.ScopedLedger, report.ScopedGateway)
		if report.Retained != nil && report.Retained.Available {
			fmt.Fprintf(os.Stderr, "Retained at gateway: %d.\n", report.Retained.Total)
		}
	}

	return nil
}

// buildReport runs each analysis over the loaded dataset and assembles the
// report.
func buildReport(session *reconciler.AuditSession, dataset *reconciler.Dataset, engine *rules.Engine) *reporter.AuditReport {
	report := &reporter.AuditReport{
		EntityName:    entityName,
		AuditedYear:   auditedYear,
		GeneratedAt:   time.Now(),
		LedgerTotal:   len(dataset.Ledger),
		ScopedLedger:  len(dataset.ScopedLedger),
		ScopedGateway: len(dataset.ScopedGateway),
	}

	for _, inv := range dataset.ScopedLedger {
		if inv.IsDeleted() {
			report.DeletedCount++
			continue
		}
		if inv.IsPaper {
			report.PaperCount++
		} else {
			report.ElectronicCount++
		}
	}

	report.Retained = reconciler.FindRetained(dataset)
	report.Cancellations = reconciler.AnalyzeCancellations(dataset)
	report.Timing = timing.Analyze(dataset, topDelays)
	report.Compliance = engine.Evaluate(dataset.ScopedLedger)
	report.Rejections = rules.AnalyzeRejections(dataset.ScopedLedger)
	report.PaperObligations = engine.SuspectPaperInvoices(dataset.ScopedLedger)
	report.States = lifecycle.Distribution(dataset.ScopedStateHistory, dataset.HasStateHistory)
	report.Suppliers = session.SupplierRanking(topSuppliers)

	return report
}
