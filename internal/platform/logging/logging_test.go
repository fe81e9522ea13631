package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, level string) (*Logger, string) {
	t.Helper()
	tmpDir := t.TempDir()

	logger, err := NewLogger(&Config{
		LogLevel: level,
		LogDir:   tmpDir,
		LogFile:  "server.log",
	})
	if err != nil {
		t.Fatalf("NewLogger returned error: %v", err)
	}
	t.Cleanup(func() {
		_ = logger.Close()
	})
	return logger, filepath.Join(tmpDir, "server.log")
}

func readLogFile(t *testing.T, path string) string {
	t.Helper()
	time.Sleep(10 * time.Millisecond)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	return string(content)
}

func TestLogger_InfoWritesToFile(t *testing.T) {
	logger, logPath := newTestLogger(t, "info")

	logger.Info("患者上下文已合并")

	content := readLogFile(t, logPath)
	if !strings.Contains(content, "患者上下文已合并") {
		t.Errorf("log file does not contain message, got: %s", content)
	}
}

func TestLogger_FormattedMessage(t *testing.T) {
	logger, logPath := newTestLogger(t, "info")

	logger.Info("流式请求: model=%s stream=%v", "gpt-4", true)

	content := readLogFile(t, logPath)
	if !strings.Contains(content, "model=gpt-4 stream=true") {
		t.Errorf("formatted message missing, got: %s", content)
	}
}

func TestLogger_DebugFilteredAtInfoLevel(t *testing.T) {
	logger, logPath := newTestLogger(t, "info")

	logger.Debug("should not appear")
	logger.Info("should appear")

	content := readLogFile(t, logPath)
	if strings.Contains(content, "should not appear") {
		t.Error("debug message should be filtered at info level")
	}
	if !strings.Contains(content, "should appear") {
		t.Error("info message missing")
	}
}

func TestFormatLog(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		message string
		want    string
	}{
		{"with tag", "聊天", "请求已受理", "[聊天] 请求已受理"},
		{"empty tag", "", "plain message", "plain message"},
		{"already tagged", "HTTP", "[HTTP] 已注册路由", "[HTTP] 已注册路由"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatLog(tt.tag, tt.message); got != tt.want {
				t.Errorf("FormatLog(%q, %q) = %q, want %q", tt.tag, tt.message, got, tt.want)
			}
		})
	}
}

func TestLogger_TagHelpersNilSafe(t *testing.T) {
	var logger *Logger
	// 空指针时不应panic
	logger.InfoTag("聊天", "ignored")
	logger.WarnTag("聊天", "ignored")
	logger.ErrorTag("聊天", "ignored")
}

func TestLogger_InfoTagWritesTaggedMessage(t *testing.T) {
	logger, logPath := newTestLogger(t, "info")

	logger.InfoTag("数据库", "连接池已建立")

	content := readLogFile(t, logPath)
	if !strings.Contains(content, "[数据库] 连接池已建立") {
		t.Errorf("tagged message missing, got: %s", content)
	}
}
