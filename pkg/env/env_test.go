package env

import "testing"

func TestGetPrefersEarlierKeys(t *testing.T) {
	t.Setenv("PARTNERLEDGER_LOG_FORMAT", "console")
	t.Setenv("LOG_FORMAT", "json")
	if got := Get("text", "PARTNERLEDGER_LOG_FORMAT", "LOG_FORMAT"); got != "console" {
		t.Fatalf("Get = %q, want console", got)
	}
}

func TestGetSkipsBlankValues(t *testing.T) {
	t.Setenv("PARTNERLEDGER_LOG_FORMAT", "  ")
	t.Setenv("LOG_FORMAT", "json")
	if got := Get("text", "PARTNERLEDGER_LOG_FORMAT", "LOG_FORMAT"); got != "json" {
		t.Fatalf("Get = %q, want json", got)
	}
	if got := Get("text", "PARTNERLEDGER_UNSET_KEY"); got != "text" {
		t.Fatalf("Get = %q, want fallback", got)
	}
}
