package debug

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// capture initializes the logger at lvl and returns its output buffer.
func capture(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	Init(lvl)
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { Init(LevelOff); logger = nil })
	return &buf
}

func TestLevelGating(t *testing.T) {
	cases := []struct {
		level int
		want  []string
		skip  []string
	}{
		{LevelInfo, []string{"[INFO] boot", "[SKIP] cycle=c1", "[ERROR] cycle=c2 category=network"}, []string{"[LIVE]", "[VERBOSE]"}},
		{LevelLive, []string{"[LIVE] cycle=c3 snapshot saved to /d/1.jpg"}, []string{"[VERBOSE]"}},
		{LevelVerbose, []string{"[VERBOSE] GET http://cam"}, []string{"[TRACE]"}},
	}
	for _, tc := range cases {
		buf := capture(t, tc.level)

		Info("boot")
		Rejected("c1", "placeholder frame")
		Failed("c2", "network", errors.New("refused"))
		Accepted("c3", "/d/1.jpg")
		Verbose("GET %s", "http://cam")
		Trace("low level")

		out := buf.String()
		for _, w := range tc.want {
			if !strings.Contains(out, w) {
				t.Errorf("level %d: missing %q in:\n%s", tc.level, w, out)
			}
		}
		for _, s := range tc.skip {
			if strings.Contains(out, s) {
				t.Errorf("level %d: unexpected %q in:\n%s", tc.level, s, out)
			}
		}
		if !strings.HasPrefix(out, "[SnapGo] ") {
			t.Errorf("level %d: output should carry the [SnapGo] prefix", tc.level)
		}
	}
}

func TestOffIsSilent(t *testing.T) {
	Init(LevelOff)
	logger = nil
	// must not panic without a logger
	Info("x")
	Error(errors.New("x"))
	SetOutput(&bytes.Buffer{})
	if IsEnabled(LevelInfo) {
		t.Error("IsEnabled(LevelInfo) should be false when off")
	}
}
