// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	log "unknwon.dev/clog/v2"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"":      log.LevelInfo,
		"info":  log.LevelInfo,
		"debug": log.LevelTrace,
		"TRACE": log.LevelTrace,
		"warn":  log.LevelWarn,
		"error": log.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.ErrorContains(t, err, "expected trace, info, warn or error")
}

func TestPrefixFormat(t *testing.T) {
	l := New("fetch", 2).(*logPrefix)
	assert.Equal(t, "[FETCH] hello %s", l.format("hello %s"))

	bare := New("", 2).(*logPrefix)
	assert.Equal(t, "hello", bare.format("hello"))
}

func TestInit_NoBackends(t *testing.T) {
	stop, err := Init(Options{Level: "warn"})
	assert.NoError(t, err)
	assert.NotPanics(t, stop)

	_, err = Init(Options{Level: "shouty"})
	assert.Error(t, err)
}

func TestInit_ConsoleUsesOutput(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	stop, err := Init(Options{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)

	l := New("fetch", 2)
	l.Trace("hidden")
	l.Info("hello %d", 1)
	l.Warn("careful")
	stop()

	out := buf.String()
	assert.Contains(t, out, "[FETCH] hello 1")
	assert.Contains(t, out, "[FETCH] careful")
	assert.NotContains(t, out, "hidden")

	// Detached after stop.
	l.Info("late")
	assert.NotContains(t, buf.String(), "late")
	assert.NotPanics(t, stop)
}

func TestInit_Reusable(t *testing.T) {
	color.NoColor = true
	for i := 0; i < 3; i++ {
		var buf bytes.Buffer
		stop, err := Init(Options{Level: "trace", Console: true, Output: &buf})
		require.NoError(t, err)
		New("run", 2).Trace("pass %d", i)
		stop()
		assert.Contains(t, buf.String(), "[RUN] pass")
	}
}
