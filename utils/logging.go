package utils

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

const (
	StatusStarted   = "STARTED"
	StatusCompleted = "COMPLETED"
)

// NewLogger writes JSON records to logFilePath (appending) and text records to stderr.
// The returned file must be closed by the caller.
func NewLogger(logFilePath string, level slog.Level) (*slog.Logger, *os.File, error) {
	logFile, err := os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slogmulti.Fanout(
		slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	))
	return logger, logFile, nil
}

// LogStage writes one stage record: message tool, keys PROGRAM, SAMPLE, STATUS and CMD.
func LogStage(logger *slog.Logger, tool, program, sample, status, cmd string) {
	logger.Info(tool, "PROGRAM", program, "SAMPLE", sample, "STATUS", status, "CMD", cmd)
}

type LogEntry struct {
	Timestamp string `json:"time"`
	Level     string `json:"level"`
	Tool      string `json:"msg"`
	Program   string `json:"PROGRAM"`
	Sample    string `json:"SAMPLE"`
	Status    string `json:"STATUS"`
	Cmd       string `json:"CMD"`
}

// ParseLogFile reads the stage records of a JSON log. A missing file yields no entries;
// lines that are not stage records are skipped.
func ParseLogFile(logFilePath string) ([]LogEntry, error) {
	file, err := os.Open(logFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()
	return parseLog(file)
}

func parseLog(r io.Reader) ([]LogEntry, error) {
	var entries []LogEntry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var entry LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if entry.Program == "" || entry.Status == "" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

// StageHasCompleted reports whether the last record for (program, sample, cmd) is COMPLETED.
func StageHasCompleted(entries []LogEntry, program, sample, cmd string) bool {
	completed := false
	for _, e := range entries {
		if e.Program != program || e.Sample != sample || e.Cmd != cmd {
			continue
		}
		completed = e.Status == StatusCompleted
	}
	return completed
}
