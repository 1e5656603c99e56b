// Package audit runs consistency checks over persisted vacation data and
// produces a report per company. It never mutates balances or requests; the
// only thing it writes is its own report.
package audit

import (
	"sort"
	"time"
)

// Severity of a finding.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Kind separates findings that fail a report from those that only warn.
type Kind string

const (
	KindError   Kind = "error"
	KindWarning Kind = "warning"
)

// Status is the roll-up of a check or of a whole report.
type Status string

const (
	StatusPassed  Status = "PASSED"
	StatusWarning Status = "WARNING"
	StatusFailed  Status = "FAILED"
)

// Finding is one problem detected by a check.
type Finding struct {
	Check      string            `json:"check"`
	Type       string            `json:"type"`
	Kind       Kind              `json:"kind"`
	Severity   Severity          `json:"severity"`
	EmployeeID string            `json:"employee_id,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	EntryID    string            `json:"entry_id,omitempty"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Errors   int    `json:"errors"`
	Warnings int    `json:"warnings"`
}

// Summary counts what a run looked at and found.
type Summary struct {
	TotalChecks         int `json:"total_checks"`
	PassedChecks        int `json:"passed_checks"`
	WarningChecks       int `json:"warning_checks"`
	FailedChecks        int `json:"failed_checks"`
	TotalErrors         int `json:"total_errors"`
	TotalWarnings       int `json:"total_warnings"`
	CriticalFindings    int `json:"critical_findings"`
	BalancesChecked     int `json:"balances_checked"`
	RequestsChecked     int `json:"requests_checked"`
	AuditEntriesChecked int `json:"audit_entries_checked"`
}

// Findings groups the per-check results and the findings of a run.
type Findings struct {
	Checks   []CheckResult `json:"checks"`
	Errors   []Finding     `json:"errors"`
	Warnings []Finding     `json:"warnings"`
	Summary  Summary       `json:"summary"`
}

// Report is the persisted result of one audit run.
type Report struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Findings  Findings  `json:"findings"`
}

// Critical returns the CRITICAL findings of the report.
func (r *Report) Critical() []Finding {
	var out []Finding
	for _, f := range append(append([]Finding(nil), r.Findings.Errors...), r.Findings.Warnings...) {
		if f.Severity == SeverityCritical {
			out = append(out, f)
		}
	}
	return out
}

func statusOf(errs, warns int) Status {
	switch {
	case errs > 0:
		return StatusFailed
	case warns > 0:
		return StatusWarning
	default:
		return StatusPassed
	}
}

// sortFindings orders findings so repeated runs over the same data compare
// equal.
func sortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.EmployeeID != b.EmployeeID {
			return a.EmployeeID < b.EmployeeID
		}
		if a.RequestID != b.RequestID {
			return a.RequestID < b.RequestID
		}
		if a.EntryID != b.EntryID {
			return a.EntryID < b.EntryID
		}
		return a.Type < b.Type
	})
}

// assemble builds the report body from per-check findings, in check order.
func assemble(names []string, perCheck [][]Finding, counts Summary) Findings {
	out := Findings{Summary: counts}
	out.Summary.TotalChecks = len(names)
	for i, name := range names {
		res := CheckResult{Name: name}
		for _, f := range perCheck[i] {
			if f.Severity == SeverityCritical {
				out.Summary.CriticalFindings++
			}
			if f.Kind == KindWarning {
				res.Warnings++
				out.Warnings = append(out.Warnings, f)
				continue
			}
			res.Errors++
			out.Errors = append(out.Errors, f)
		}
		res.Status = statusOf(res.Errors, res.Warnings)
		switch res.Status {
		case StatusPassed:
			out.Summary.PassedChecks++
		case StatusWarning:
			out.Summary.WarningChecks++
		default:
			out.Summary.FailedChecks++
		}
		out.Checks = append(out.Checks, res)
	}
	out.Summary.TotalErrors = len(out.Errors)
	out.Summary.TotalWarnings = len(out.Warnings)
	if out.Errors == nil {
		out.Errors = []Finding{}
	}
	if out.Warnings == nil {
		out.Warnings = []Finding{}
	}
	return out
}
