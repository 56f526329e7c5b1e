package events

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/subsync/internal/application/reconciliation"
)

func TestLineWriter(t *testing.T) {
	var buf bytes.Buffer
	handler := lineWriter(&buf)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	handler(context.Background(), reconciliation.EntitlementChanged{UserID: "u1", Status: "active", PlanType: "lunary_plus", OccurredAt: at})
	handler(context.Background(), reconciliation.EntitlementChanged{UserID: "u2", PreviousStatus: "active", Status: "cancelled", PlanType: "lunary_plus", OccurredAt: at})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var second reconciliation.EntitlementChanged
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "u2", second.UserID)
	assert.Equal(t, "active", second.PreviousStatus)
}

func TestTailCommand_RejectsArgs(t *testing.T) {
	cmd := NewCommand()
	cmd.SetArgs([]string{"tail", "extra"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	assert.Error(t, cmd.Execute())
}
