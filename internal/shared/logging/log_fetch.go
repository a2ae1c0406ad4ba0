package logging

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LogMatches holds the lines of one log file that mention a log id.
type LogMatches struct {
	LogID     string   `json:"log_id"`
	Path      string   `json:"path"`
	Entries   []string `json:"entries,omitempty"`
	Truncated bool     `json:"truncated,omitempty"`
}

// FetchOptions bounds how much of the log is returned.
type FetchOptions struct {
	MaxEntries   int
	MaxBytes     int
	MaxLineBytes int
}

func (o FetchOptions) normalized() FetchOptions {
	if o.MaxEntries <= 0 {
		o.MaxEntries = 200
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 1 << 20
	}
	if o.MaxLineBytes <= 0 {
		o.MaxLineBytes = 1 << 20
	}
	return o
}

// FetchByLogID scans <dir>/counsel.log for lines tagged with logID. It is
// how a request's X-Log-Id is traced back to the service log.
func FetchByLogID(dir, logID string, opts FetchOptions) (LogMatches, error) {
	logID = strings.TrimSpace(logID)
	if logID == "" {
		return LogMatches{}, errors.New("log id is required")
	}
	if strings.TrimSpace(dir) == "" {
		return LogMatches{}, errors.New("logging.dir is not configured")
	}
	path := filepath.Join(dir, logFileName)
	matches := LogMatches{LogID: logID, Path: path}

	file, err := os.Open(path)
	if err != nil {
		return matches, err
	}
	defer func() { _ = file.Close() }()

	opts = opts.normalized()
	needle := "[log_id=" + logID + "]"
	reader := bufio.NewReaderSize(file, 64*1024)
	matched := 0
	for {
		line, err := readLine(reader, opts.MaxLineBytes)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return matches, err
		}
		if !strings.Contains(line, needle) {
			continue
		}
		matches.Entries = append(matches.Entries, line)
		matched += len(line)
		if len(matches.Entries) >= opts.MaxEntries || matched >= opts.MaxBytes {
			matches.Truncated = true
			break
		}
	}
	return matches, nil
}

// readLine returns the next line without its terminator. Lines longer than
// maxBytes are dropped.
func readLine(reader *bufio.Reader, maxBytes int) (string, error) {
	var buf []byte
	oversize := false
	for {
		segment, isPrefix, err := reader.ReadLine()
		if err != nil {
			if len(buf) > 0 && !oversize {
				return string(buf), nil
			}
			return "", err
		}
		if !oversize {
			buf = append(buf, segment...)
			if len(buf) > maxBytes {
				buf = nil
				oversize = true
			}
		}
		if isPrefix {
			continue
		}
		if oversize {
			oversize = false
			continue
		}
		return string(buf), nil
	}
}
