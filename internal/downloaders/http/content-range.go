package rangehttp

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseContentRange parses "bytes start-end/total". Total is -1 for "*".
func ParseContentRange(header string) (start, end, total int64, err error) {
	value := strings.TrimSpace(header)
	if !strings.HasPrefix(value, "bytes ") {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}
	value = strings.TrimPrefix(value, "bytes ")
	parts := strings.Split(value, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}
	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}
	// "bytes */1234" is how a 416 reports the size
	if parts[0] == "*" {
		return -1, -1, total, nil
	}
	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}
	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}
	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}
	if end < start {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range: end %d before start %d", end, start)
	}
	return start, end, total, nil
}
