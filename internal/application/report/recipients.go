package report

import (
	"strings"

	"github.com/erp/inventoryreport/internal/domain/shared"
)

// MaxRecipients is the largest recipient list a report may be sent to
const MaxRecipients = 500

// BuildRecipients merges base and added addresses into one list.
// Entries are trimmed and blanks dropped. The size limit applies to the merged
// list before duplicates are removed; the result keeps first-seen order.
// Nil slices are treated as empty.
func BuildRecipients(base, added []string) ([]string, error) {
	merged := make([]string, 0, len(base)+len(added))
	for _, list := range [][]string{base, added} {
		for _, email := range list {
			if email = strings.TrimSpace(email); email != "" {
				merged = append(merged, email)
			}
		}
	}

	if len(merged) > MaxRecipients {
		return nil, shared.NewValidationError("recipients", "recipient list exceeds maximum size of 500")
	}

	seen := make(map[string]struct{}, len(merged))
	recipients := make([]string, 0, len(merged))
	for _, email := range merged {
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		recipients = append(recipients, email)
	}
	return recipients, nil
}
