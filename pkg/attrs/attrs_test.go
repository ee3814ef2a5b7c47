package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	fields := []any{"workflow_id", "wf-1", "attempt", 2, "to", "kyc.complete", "dangling"}

	assert.Equal(t, "wf-1", ExtractString(fields, "workflow_id"))
	assert.Equal(t, "kyc.complete", ExtractString(fields, "to"))
	assert.Empty(t, ExtractString(fields, "attempt"), "non-string value")
	assert.Empty(t, ExtractString(fields, "dangling"), "key without a value")
	assert.Empty(t, ExtractString(nil, "workflow_id"))
}
