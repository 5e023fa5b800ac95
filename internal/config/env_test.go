// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseHelpers(t *testing.T) {
	t.Setenv("CP_TEST_STR", "value")
	t.Setenv("CP_TEST_EMPTY", "")
	t.Setenv("CP_TEST_INT", "42")
	t.Setenv("CP_TEST_BAD_INT", "4x2")
	t.Setenv("CP_TEST_DUR", "1m30s")
	t.Setenv("CP_TEST_FLOAT", "0.25")

	assert.Equal(t, "value", ParseString("CP_TEST_STR", "def"))
	assert.Equal(t, "def", ParseString("CP_TEST_EMPTY", "def"))
	assert.Equal(t, "def", ParseString("CP_TEST_UNSET", "def"))
	assert.Equal(t, 42, ParseInt("CP_TEST_INT", 1))
	assert.Equal(t, 1, ParseInt("CP_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, ParseDuration("CP_TEST_DUR", time.Second))
	assert.Equal(t, 0.25, ParseFloat("CP_TEST_FLOAT", 1))
}

func TestParseBool(t *testing.T) {
	cases := map[string]bool{"true": true, "YES": true, "1": true, "false": false, "No": false, "0": false}
	for raw, want := range cases {
		t.Run(raw, func(t *testing.T) {
			t.Setenv("CP_TEST_BOOL", raw)
			assert.Equal(t, want, ParseBool("CP_TEST_BOOL", !want))
		})
	}
	t.Setenv("CP_TEST_BOOL", "maybe")
	assert.True(t, ParseBool("CP_TEST_BOOL", true))
}
