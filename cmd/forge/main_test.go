package main

import "testing"

func TestRunRequiresACommand(t *testing.T) {
	if got := run([]string{"forge"}); got != 1 {
		t.Errorf("run with no subcommand = %d, want 1", got)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	if got := run([]string{"forge", "bogus"}); got != 1 {
		t.Errorf("run with an unknown subcommand = %d, want 1", got)
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	if got := run([]string{"forge", "build", "-no-such-flag"}); got != 1 {
		t.Errorf("run with a malformed flag = %d, want 1", got)
	}
}
