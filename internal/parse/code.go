package parse

import (
	"fmt"
	"strconv"
	"strings"
)

// RobotNumber extracts the numeric part of a robot code such as "R-150".
// Only the segment right after the first "-" is considered, so "R-15-2"
// yields 15.
func RobotNumber(code string) (int, error) {
	parts := strings.Split(code, "-")
	if len(parts) < 2 {
		return 0, fmt.Errorf("robot code %q has no numeric segment", code)
	}

	n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, fmt.Errorf("robot code %q: %w", code, err)
	}
	return n, nil
}

// DisplayType maps a vendor robot type code to the label operators see.
// Unknown codes are not an error.
func DisplayType(robotTypeCode string) string {
	switch robotTypeCode {
	case "RT_KUBOT":
		return "Big Robot"
	case "RT_KUBOT_MINI_HAIFLEX":
		return "Small Robot"
	default:
		return "Unknown Type"
	}
}
