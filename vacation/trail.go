package vacation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/vacation-engine/generic"
)

// piiKeys are snapshot keys that would carry personal data.
var piiKeys = map[string]bool{
	"name":      true,
	"email":     true,
	"firstname": true,
	"lastname":  true,
}

// FindPII returns the paths of personal-data keys inside a snapshot, looking
// through nested maps and slices. Key matching ignores case and underscores.
func FindPII(snapshot map[string]any) []string {
	var found []string
	var walk func(prefix string, v any)
	walk = func(prefix string, v any) {
		switch t := v.(type) {
		case map[string]any:
			for k, child := range t {
				path := k
				if prefix != "" {
					path = prefix + "." + k
				}
				if piiKeys[strings.ToLower(strings.ReplaceAll(k, "_", ""))] {
					found = append(found, path)
				}
				walk(path, child)
			}
		case []any:
			for i, child := range t {
				walk(fmt.Sprintf("%s[%d]", prefix, i), child)
			}
		}
	}
	walk("", snapshot)
	sort.Strings(found)
	return found
}

// newEntry builds a trail entry stamped by the clock.
func newEntry(clock generic.Clock, actor Actor, companyID, employeeID string, action AuditAction) AuditLogEntry {
	return AuditLogEntry{
		ID:          uuid.NewString(),
		CompanyID:   companyID,
		EmployeeID:  employeeID,
		Action:      action,
		PerformedBy: actor.UserID,
		Quantity:    decimal.Zero,
		Timestamp:   clock.Now().UTC().Truncate(time.Microsecond),
	}
}

// appendAudit validates and appends an entry. Entries with personal data in
// their snapshots are refused.
func appendAudit(ctx context.Context, trail AuditTrail, entry AuditLogEntry) error {
	pii := append(FindPII(entry.PreviousState), FindPII(entry.NewState)...)
	if len(pii) > 0 {
		return &generic.DataIntegrityError{
			Rule: generic.ErrPIIInAuditLog, CompanyID: entry.CompanyID, EmployeeID: entry.EmployeeID,
			Message: fmt.Sprintf("snapshot keys %v", pii),
		}
	}
	return trail.AppendAudit(ctx, entry)
}
