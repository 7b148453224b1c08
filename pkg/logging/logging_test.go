package logging

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	return &buf
}

func TestLevels(t *testing.T) {
	buf := captureLog(t)

	Infof("loaded %d slices", 3)
	Warningf("spacing %g", 0.0)
	Errorf("failed")

	out := buf.String()
	for _, want := range []string{"INFO loaded 3 slices", "WARNING spacing 0", "ERROR failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in log output %q", want, out)
		}
	}
}

func TestDebugVerbose(t *testing.T) {
	buf := captureLog(t)
	defer SetVerbose(false)

	SetVerbose(false)
	Debugf("hidden")
	if buf.Len() != 0 {
		t.Errorf("Expected no debug output, got %q", buf.String())
	}

	SetVerbose(true)
	Debugf("shown")
	if !strings.Contains(buf.String(), "DEBUG shown") {
		t.Errorf("Expected debug output, got %q", buf.String())
	}
}

func TestSetLoggerFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spatialimg.log")
	c := &LogConfig{Logfile: path, MaxSize: 1, MaxAge: 1}

	closer := c.SetLogger()
	t.Cleanup(func() { log.SetOutput(os.Stderr) })
	Infof("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Log file not written: %v", err)
	}
	if !strings.Contains(string(data), "INFO to file") {
		t.Errorf("Expected message in log file, got %q", data)
	}
}

func TestSetLoggerStderr(t *testing.T) {
	var c *LogConfig
	if err := c.SetLogger().Close(); err != nil {
		t.Errorf("Expected no-op closer, got %v", err)
	}
}
