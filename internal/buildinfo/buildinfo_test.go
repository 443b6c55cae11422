package buildinfo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet_InjectedValuesWin(t *testing.T) {
	orig := [3]string{Version, Commit, Date}
	t.Cleanup(func() { Version, Commit, Date = orig[0], orig[1], orig[2] })

	Version, Commit, Date = "v1.2.3", "abc123", "2026-01-02"

	assert.Equal(t, Info{Version: "v1.2.3", Commit: "abc123", Date: "2026-01-02"}, Get())
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf)

	out := buf.String()
	assert.Contains(t, out, "Build version: ")
	assert.Contains(t, out, "Build date: ")
	assert.Contains(t, out, "Build commit: ")
}
