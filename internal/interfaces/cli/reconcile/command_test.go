package reconcile

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(cmd *cobra.Command, args ...string) error {
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.Execute()
}

func TestReconcileCommand_Flags(t *testing.T) {
	cmd := NewReconcileCommand()

	for _, name := range []string{"dry-run", "force", "limit", "env", "config"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}

	err := execute(cmd, "--limit", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--limit")
}

func TestSyncCustomerCommand_RequiresTarget(t *testing.T) {
	assert.Error(t, execute(NewSyncCustomerCommand()))
	assert.Error(t, execute(NewSyncCustomerCommand(), "cus_1", "cus_2"))
}

func TestHealthCommand_Flags(t *testing.T) {
	cmd := NewHealthCommand()
	assert.NotNil(t, cmd.Flags().Lookup("fix"))
	assert.NotNil(t, cmd.Flags().Lookup("max-iterations"))

	err := execute(cmd, "--max-iterations", "-5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--max-iterations")
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"processed": 2}))
	assert.JSONEq(t, `{"processed":2}`, buf.String())
}
