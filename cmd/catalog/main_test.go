package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	_ "github.com/bensupplier/catalog/testing"
)

func TestRunHashPasswordFromStdin(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"hash-password"}, strings.NewReader("hunter2\n"), &out)
	require.NoError(t, err)

	hash := strings.TrimSpace(out.String())
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("hunter2")))
}

func TestRunHashPasswordFromArgument(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"hash-password", "pw"}, strings.NewReader(""), &out))
	require.True(t, strings.HasPrefix(out.String(), "$2a$"))
}

func TestRunHashPasswordEmpty(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"hash-password"}, strings.NewReader(""), &out)
	require.Error(t, err)
	require.Empty(t, out.String())
}

func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"migrate"}, strings.NewReader(""), &bytes.Buffer{})
	require.ErrorContains(t, err, "unknown command")
}

func TestRunJobsRequiresSubcommand(t *testing.T) {
	err := run(context.Background(), []string{"jobs"}, strings.NewReader(""), &bytes.Buffer{})
	require.ErrorContains(t, err, "usage")
}
