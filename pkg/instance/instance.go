package instance

import (
	"os"
	"strings"
)

// GetID returns the process instance identifier: FOODBRIDGE_INSTANCE_ID, the
// host name, or a fixed default.
func GetID() string {
	if id := strings.TrimSpace(os.Getenv("FOODBRIDGE_INSTANCE_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return strings.ToLower(host)
	}
	return "instance-0"
}
