package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_ExitCodes(t *testing.T) {
	t.Run("help succeeds", func(t *testing.T) {
		var stdout, stderr bytes.Buffer

		code := run([]string{"--help"}, &stdout, &stderr)

		assert.Equal(t, 0, code)
		assert.Contains(t, stdout.String(), "reconcile")
		assert.Empty(t, stderr.String())
	})

	t.Run("unknown command fails with a message", func(t *testing.T) {
		var stdout, stderr bytes.Buffer

		code := run([]string{"frobnicate"}, &stdout, &stderr)

		assert.Equal(t, 1, code)
		assert.Contains(t, stderr.String(), "Error: unknown command")
	})
}
