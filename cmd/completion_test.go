package cmd

import (
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompletionCmd(t *testing.T) *cobra.Command {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cmd := &cobra.Command{Use: "complete"}
	addGlobalFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Parse([]string{"--backend", "memory", "--storage", "memory"}))
	cmd.SetContext(context.Background())
	return cmd
}

func TestCompleteAppKeys(t *testing.T) {
	cmd := newCompletionCmd(t)

	keys, directive := completeAppKeys(1)(cmd, nil, "")
	assert.Equal(t, []string{"ride-plan", "via-hub-dev", "shift-manager", "configuration-service"}, keys)
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)

	keys, _ = completeAppKeys(1)(cmd, nil, "sh")
	assert.Equal(t, []string{"shift-manager"}, keys)

	keys, _ = completeAppKeys(1)(cmd, []string{"ride-plan"}, "")
	assert.Empty(t, keys)

	keys, _ = completeAppKeys(-1)(cmd, []string{"ride-plan", "via-hub-dev"}, "")
	assert.Equal(t, []string{"shift-manager", "configuration-service"}, keys)
}
