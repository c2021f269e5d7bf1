package monitor

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// successLine matches log lines about requests that got a 2xx answer.
var successLine = regexp.MustCompile(`HTTP/1\.[01]" 2\d\d|HTTP/1\.[01] 2\d\d|"(code|status)":2\d\d\b`)

// tailLog returns the last n lines of path, skipping successful requests.
func tailLog(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" || successLine.MatchString(line) {
			continue
		}
		if n <= 0 {
			continue
		}
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, line)
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(ring, "\n"), nil
}

func readLogExcerpt(path string, n int) string {
	text, err := tailLog(path, n)
	if err != nil {
		return fmt.Sprintf("Could not find logs: %v", err)
	}
	return text
}
