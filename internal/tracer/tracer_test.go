package tracer

import (
	"syscall"
	"testing"

	"golang.org/x/sys/unix"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "empty command",
			cfg:     Config{},
			wantErr: true,
		},
		{
			name: "valid",
			cfg:  Config{Command: []string{"true"}},
		},
		{
			name: "terminate and kill together",
			cfg: Config{
				Command:         []string{"true"},
				TerminateOnExit: true,
				KillOnExit:      true,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSeccompMode(t *testing.T) {
	for _, mode := range []string{"auto", "on", "off"} {
		if _, err := ParseSeccompMode(mode); err != nil {
			t.Errorf("ParseSeccompMode(%q) error: %v", mode, err)
		}
	}
	if _, err := ParseSeccompMode("maybe"); err == nil {
		t.Error("ParseSeccompMode(\"maybe\") accepted")
	}
}

func TestExitStatusExitCode(t *testing.T) {
	tests := []struct {
		name   string
		status ExitStatus
		want   int
	}{
		{"clean exit", ExitStatus{Code: 0}, 0},
		{"nonzero exit", ExitStatus{Code: 3}, 3},
		{"killed", ExitStatus{Signaled: true, Signal: unix.SIGKILL}, 137},
		{"terminated", ExitStatus{Signaled: true, Signal: syscall.SIGTERM}, 143},
		{"detached", ExitStatus{Code: 7, Detached: true}, 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.ExitCode(); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
