package main

import "testing"

func TestRunVersion(t *testing.T) {
	if code := run([]string{"-version"}); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	if code := run([]string{"-unknown-flag"}); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestRunMissingConfig(t *testing.T) {
	if code := run([]string{"-config", "/nonexistent/path/config.json"}); code != 1 {
		t.Errorf("exit code = %d, want 1 for a missing config file", code)
	}
}
