package errors

import (
	"fmt"
	"testing"
)

func TestNewAndWrap(t *testing.T) {
	err := New(CategoryParse, CodeInvalidFormat, "bad header row")
	if err.Category != CategoryParse || err.Code != CodeInvalidFormat {
		t.Errorf("unexpected error: %+v", err)
	}
	if err.StackTrace == nil {
		t.Error("stack trace must be captured")
	}

	cause := fmt.Errorf("underlying")
	wrapped := Wrap(cause, CategoryFile, CodeFileCorrupted, "load failed")
	if wrapped.Unwrap() != cause {
		t.Error("Unwrap must return the cause")
	}
	if Wrap(nil, CategoryFile, CodeFileCorrupted, "x") != nil {
		t.Error("wrapping nil must yield nil")
	}
}

func TestErrorMessageIncludesSuggestion(t *testing.T) {
	err := New(CategoryValidation, CodeMissingField, "field missing").
		WithSuggestion("provide the field")
	if got := err.Error(); got != "field missing (suggestion: provide the field)" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		category ErrorCategory
		want     int
	}{
		{CategoryFile, 2},
		{CategoryParse, 3},
		{CategoryValidation, 3},
		{CategoryConfiguration, 4},
		{CategoryAudit, 5},
		{CategoryInternal, 5},
	}
	for _, tt := range tests {
		err := New(tt.category, CodeUnexpectedError, "x")
		if got := err.GetExitCode(); got != tt.want {
			t.Errorf("exit code for %s = %d, want %d", tt.category, got, tt.want)
		}
	}
}

func TestSourceError(t *testing.T) {
	err := SourceError("gateway", "/data/face.xlsx", fmt.Errorf("broken"))
	if err.Category != CategoryFile || err.Code != CodeSourceUnreadable {
		t.Errorf("unexpected taxonomy: %s/%s", err.Category, err.Code)
	}
	if err.Context["source"] != "gateway" {
		t.Errorf("source context missing: %v", err.Context)
	}
}

func TestWithContext(t *testing.T) {
	err := New(CategoryAudit, CodeRowBudgetExceeded, "too many rows").
		WithContext("rows", 100).
		WithContext("max_rows", 10)
	if err.Context["rows"] != 100 || err.Context["max_rows"] != 10 {
		t.Errorf("context lost: %v", err.Context)
	}
}

func TestAsAuditError(t *testing.T) {
	base := New(CategoryParse, CodeInvalidData, "bad cell")
	wrapped := fmt.Errorf("outer: %w", base)

	found, ok := AsAuditError(wrapped)
	if !ok || found != base {
		t.Error("AsAuditError must find the wrapped error")
	}

	if _, ok := AsAuditError(fmt.Errorf("plain")); ok {
		t.Error("plain errors must not match")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	base := New(CategoryFile, CodeFileNotFound, "missing")
	if got := WrapIfNeeded(base, CategoryInternal, CodeUnexpectedError, "x"); got != base {
		t.Error("existing AuditError must pass through unchanged")
	}

	plain := fmt.Errorf("plain")
	got := WrapIfNeeded(plain, CategoryInternal, CodeUnexpectedError, "wrapped")
	if got.Category != CategoryInternal || got.Cause != plain {
		t.Errorf("unexpected wrap: %+v", got)
	}
	if WrapIfNeeded(nil, CategoryInternal, CodeUnexpectedError, "x") != nil {
		t.Error("nil must stay nil")
	}
}

func TestErrorSummary(t *testing.T) {
	summary := NewErrorSummary([]*AuditError{
		New(CategoryFile, CodeFileNotFound, "a"),
		New(CategoryParse, CodeInvalidData, "b"),
		New(CategoryParse, CodeInvalidData, "c"),
	})

	if summary.Total != 3 {
		t.Errorf("total = %d, want 3", summary.Total)
	}
	if summary.ByCategory[CategoryParse] != 2 || summary.ByCode[CodeInvalidData] != 2 {
		t.Errorf("unexpected tallies: %+v", summary)
	}
	if summary.GetExitCode() != 3 {
		t.Errorf("summary exit code = %d, want 3", summary.GetExitCode())
	}

	empty := NewErrorSummary(nil)
	if empty.Error() != "no errors" || empty.GetExitCode() != 0 {
		t.Errorf("empty summary misbehaves: %q %d", empty.Error(), empty.GetExitCode())
	}
}
