package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func runCommand(cmd *cobra.Command, stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestHashPasswordCommand(t *testing.T) {
	out, err := runCommand(newRootCommand(), "", "hash-password", "s3cret-pass")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret-pass")))

	out, err = runCommand(newRootCommand(), "from-stdin\n", "hash-password")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out)), []byte("from-stdin")))

	_, err = runCommand(newRootCommand(), "", "hash-password")
	assert.Error(t, err)
}

func TestSimulateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sim.db")

	out, err := runCommand(newRootCommand(), "", "simulate",
		"--orders", "6",
		"--devices", "4",
		"--latency", "0s",
		"--seed", "7",
		"--db", dbPath,
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "STARTING SIMULATION (6 ORDERS, seed 7)")
	assert.Contains(t, out, "RECONCILING PENDING ORDERS")
	assert.Equal(t, 6, strings.Count(out, "-> ledger:"), out)
	assert.Equal(t, 2, strings.Count(out, "orders,"), out)
}
