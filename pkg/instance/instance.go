package instance

import "os"

// GetID names this process in logs and lock values. Platform-provided ids
// win over the hostname.
func GetID() string {
	for _, key := range []string{"PARTNERLEDGER_INSTANCE_ID", "DYNO", "WORKER_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
