package refresh

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExportFailedItemsEmpty(t *testing.T) {
	out := ExportFailedItems(Run{ID: "r1", Status: StatusCompleted})
	assert.Contains(t, out, "no failed items")
}

func TestExportFailedItemsOneLinePerItem(t *testing.T) {
	run := Run{
		ID:     "r1",
		Status: StatusCompletedWithIssues,
		FailedItems: []FailedItem{
			{Category: CategoryPrices, Identifier: "BROKEN", Reason: "provider returned 500"},
			{Category: CategoryFx, Identifier: "USD->EUR", Reason: "feed down"},
		},
	}

	out := ExportFailedItems(run)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "2 failed item(s)")
	assert.Contains(t, lines[1], "BROKEN")
	assert.Contains(t, lines[1], "provider returned 500")
	assert.Contains(t, lines[2], "USD->EUR")
}
