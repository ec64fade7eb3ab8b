package cards

import (
	"fmt"
	"sort"
	"strings"

	"setgen/internal/services"
)

// Severity ranks a sanity finding.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)

// Category names the kind of data-integrity problem found.
type Category string

const (
	CategoryDuplicate        Category = "duplicate"
	CategoryDuplicateFatal   Category = "duplicate_fatal"
	CategoryDuplicateSet     Category = "duplicate_set"
	CategoryUnknownSet       Category = "unknown_set"
	CategoryMissingField     Category = "missing_field"
	CategoryUnknownSelection Category = "unknown_selection"
)

// Finding is one problem detected while normalizing card data.
type Finding struct {
	Category Category
	Severity Severity
	RecordID string
	SetID    string
	Field    string
	Message  string
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s", f.Category, f.Message)
}

// SanityReport collects every finding of one normalization pass.
type SanityReport struct {
	Findings []Finding
}

func (r *SanityReport) add(f Finding) {
	r.Findings = append(r.Findings, f)
}

// Fatal returns the findings that abort the run.
func (r SanityReport) Fatal() []Finding {
	return r.filter(SeverityFatal)
}

// Warnings returns the findings that are reported but do not abort the run.
func (r SanityReport) Warnings() []Finding {
	return r.filter(SeverityWarning)
}

// HasFatal reports whether any finding aborts the run.
func (r SanityReport) HasFatal() bool {
	return len(r.Fatal()) > 0
}

// Summary renders all findings, one per line, in a stable order.
func (r SanityReport) Summary() string {
	lines := make([]string, 0, len(r.Findings))
	for _, f := range r.sorted() {
		lines = append(lines, f.String())
	}
	return strings.Join(lines, "\n")
}

func (r SanityReport) filter(severity Severity) []Finding {
	var out []Finding
	for _, f := range r.sorted() {
		if f.Severity == severity {
			out = append(out, f)
		}
	}
	return out
}

func (r SanityReport) sorted() []Finding {
	out := append([]Finding(nil), r.Findings...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].RecordID != out[j].RecordID {
			return out[i].RecordID < out[j].RecordID
		}
		return out[i].Message < out[j].Message
	})
	return out
}

// SanityCheckError aggregates every fatal finding of a catalog.
type SanityCheckError struct {
	Findings []Finding
}

func (e *SanityCheckError) Error() string {
	lines := make([]string, 0, len(e.Findings)+1)
	lines = append(lines, fmt.Sprintf("sanity check failed with %d problem(s)", len(e.Findings)))
	for _, f := range e.Findings {
		lines = append(lines, "  "+f.String())
	}
	return strings.Join(lines, "\n")
}

func (e *SanityCheckError) Unwrap() error {
	return services.ErrDataIntegrity
}

// SanityCheck returns a *SanityCheckError listing all fatal findings, or nil
// when the catalog can be processed.
func SanityCheck(c *Catalog) error {
	fatal := c.Report.Fatal()
	if len(fatal) == 0 {
		return nil
	}
	return &SanityCheckError{Findings: fatal}
}
