package refresh

import (
	"fmt"
	"strings"
)

// ExportFailedItems renders a run's failed items as plain text, one line per
// item, for copy-out into a bug report or terminal. Returns a short notice
// when the run had no failures.
func ExportFailedItems(run Run) string {
	if len(run.FailedItems) == 0 {
		return fmt.Sprintf("Run %s: no failed items.\n", run.ID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s (%s): %d failed item(s)\n", run.ID, run.Status, len(run.FailedItems))
	for _, item := range run.FailedItems {
		fmt.Fprintf(&b, "%s\t%s\t%s\n", item.Category, item.Identifier, item.Reason)
	}
	return b.String()
}
