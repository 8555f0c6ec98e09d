// Package rules implements the compliance rule engine: rejected invoices are
// attributed to regulation clauses through an externally maintained mapping
// from rejection-motive prefixes to clause identifiers.
package rules

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"rcf-audit-service/pkg/errors"
	"rcf-audit-service/pkg/logger"
)

// PrefixLength is the number of leading characters of a rejection motive
// matched against the mapping table.
const PrefixLength = 8

// The clause identifiers of the invoice regulation the engine attributes
// rejections to.
const (
	Clause4c = "4c"
	Clause5f = "5f"
	Clause6a = "6a"
	Clause6b = "6b"
	Clause6c = "6c"
	Clause6d = "6d"
	Clause6e = "6e"
	Clause6f = "6f"
)

// ClauseOrder fixes the reporting order of the clauses.
var ClauseOrder = []string{
	Clause4c, Clause5f, Clause6a, Clause6b, Clause6c, Clause6d, Clause6e, Clause6f,
}

// clauseNames are the human-readable clause descriptions used in reports.
var clauseNames = map[string]string{
	Clause4c: "No duplicate invoices",
	Clause5f: "Issuer NIF differs from assignee NIF",
	Clause6a: "Line amounts correct (2 decimals)",
	Clause6b: "Invoice amounts correct (2 decimals)",
	Clause6c: "Valid currency code (ISO 4217)",
	Clause6d: "Withheld taxes >= 0",
	Clause6e: "Gross total = gross - discounts + charges",
	Clause6f: "Invoice total = gross + charged - withheld",
}

// ClauseName returns the description of a clause identifier.
func ClauseName(clause string) string {
	return clauseNames[clause]
}

// ClauseMapping maps rejection-motive prefixes to clause identifiers. The
// table is external and operator-maintained; the loader validates it instead
// of trusting it.
type ClauseMapping struct {
	prefixes map[string]string
}

// LoadClauseMapping reads a headerless two-column csv (prefix, clause).
// Duplicate prefixes make the attribution ambiguous and are rejected with a
// diagnostic naming the offending prefix. Unknown clause identifiers are
// rejected the same way.
func LoadClauseMapping(path string) (*ClauseMapping, error) {
	log := logger.GetGlobalLogger().WithComponent("rules")

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	prefixes := make(map[string]string)
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.ParseError(errors.CodeInvalidData, path, line, "", "", err)
		}
		if len(record) < 2 {
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, line, "clause", "",
				fmt.Errorf("expected two columns (prefix, clause), got %d", len(record))).
				WithSuggestion("each mapping row must be 'prefix,clause'")
		}

		prefix := strings.TrimSpace(record[0])
		clause := strings.ToLower(strings.TrimSpace(record[1]))
		if prefix == "" {
			return nil, errors.ParseError(errors.CodeInvalidData, path, line, "prefix", "", nil).
				WithSuggestion("remove the empty prefix row from the mapping file")
		}
		if _, known := clauseNames[clause]; !known {
			return nil, errors.ValidationError(errors.CodeInvalidData, "clause", clause, nil).
				WithContext("file", path).
				WithContext("line", line).
				WithSuggestion(fmt.Sprintf("valid clauses are: %s", strings.Join(ClauseOrder, ", ")))
		}
		if existing, dup := prefixes[prefix]; dup {
			return nil, errors.ValidationError(errors.CodeAmbiguousMapping, prefix,
				fmt.Sprintf("maps to both %s and %s", existing, clause), nil).
				WithContext("file", path).
				WithContext("line", line)
		}
		prefixes[prefix] = clause
	}

	if len(prefixes) == 0 {
		return nil, errors.ValidationError(errors.CodeMissingField, "clause mapping", path, nil).
			WithSuggestion("the mapping file must contain at least one prefix,clause row")
	}

	log.WithFields(logger.Fields{
		"file_path": path,
		"prefixes":  len(prefixes),
	}).Info("Loaded clause mapping")

	return &ClauseMapping{prefixes: prefixes}, nil
}

// Lookup attributes a rejection motive to a clause by its leading characters.
// The prefix is sliced from the motive as given; cell whitespace is already
// trimmed during parsing.
func (m *ClauseMapping) Lookup(motive string) (string, bool) {
	prefix := []rune(motive)
	if len(prefix) > PrefixLength {
		prefix = prefix[:PrefixLength]
	}
	clause, ok := m.prefixes[string(prefix)]
	return clause, ok
}

// Size returns the number of mapped prefixes.
func (m *ClauseMapping) Size() int {
	return len(m.prefixes)
}
