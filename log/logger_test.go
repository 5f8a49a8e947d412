// Copyright (c) 2026 The KalePool developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalHandlerLevels(t *testing.T) {
	var buf bytes.Buffer
	var lvl slog.LevelVar
	lvl.Set(slog.LevelInfo)

	lgr := NewLogger(NewTerminalHandlerWithLevel(&buf, &lvl, false))
	lgr.Debug("below threshold", "k", "v")
	assert.Zero(t, buf.Len())

	lgr.Info("over threshold", "block", uint32(42))
	out := buf.String()
	assert.Contains(t, out, "INFO ")
	assert.Contains(t, out, "over threshold")
	assert.Contains(t, out, "block=42")
}

func TestJSONHandlerOutput(t *testing.T) {
	var buf bytes.Buffer
	var lvl slog.LevelVar
	lgr := NewLogger(JSONHandlerWithLevel(&buf, &lvl))
	lgr.Warn("head stale", "age", 99)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "warn", rec["lvl"])
	assert.Equal(t, "head stale", rec["msg"])
	assert.Equal(t, float64(99), rec["age"])
}

func TestWithContextFollowsRoot(t *testing.T) {
	lgr := WithContext("pkg", "testpkg")

	var buf bytes.Buffer
	var lvl slog.LevelVar
	old := Root()
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(&buf, &lvl, false)))
	defer SetDefault(old)

	lgr.Info("hello")
	assert.Contains(t, buf.String(), "pkg=testpkg")
}

func TestLevelStrings(t *testing.T) {
	assert.Equal(t, "trace", LevelString(LevelTrace))
	assert.Equal(t, "crit", LevelString(LevelCrit))
	assert.Equal(t, "CRIT ", LevelAlignedString(LevelCrit))
	assert.Equal(t, LevelTrace, FromLegacyLevel(5))
	assert.Equal(t, slog.LevelInfo, FromLegacyLevel(3))
}

func TestTerminalHandlerPadding(t *testing.T) {
	var buf bytes.Buffer
	var lvl slog.LevelVar
	lgr := NewLogger(NewTerminalHandlerWithLevel(&buf, &lvl, false))
	lgr.Info("short")
	line := buf.String()
	msgIdx := strings.Index(line, "short")
	require.Positive(t, msgIdx)
	assert.True(t, strings.HasSuffix(line, "short\n"))
}
