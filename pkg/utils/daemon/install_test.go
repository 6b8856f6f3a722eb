package daemon

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func fakeSystemctl(t *testing.T, failOn string) *[]string {
	t.Helper()

	var calls []string
	orig := systemctl
	systemctl = func(args ...string) error {
		call := strings.Join(args, " ")
		calls = append(calls, call)
		if failOn != "" && strings.HasPrefix(call, failOn) {
			return errors.New("exit status 1")
		}
		return nil
	}
	t.Cleanup(func() { systemctl = orig })

	return &calls
}

func useUnitDir(t *testing.T) {
	t.Helper()
	orig := unitDir
	unitDir = t.TempDir()
	t.Cleanup(func() { unitDir = orig })
}

func TestRenderUnit(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "no args", want: "ExecStart=/usr/local/bin/battstat daemon\n"},
		{name: "with args", args: []string{"--skip-hal"}, want: "ExecStart=/usr/local/bin/battstat --skip-hal daemon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderUnit("/usr/local/bin/battstat", tt.args...)
			if !strings.Contains(got, tt.want) {
				t.Errorf("renderUnit() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestInstallUninstall(t *testing.T) {
	useUnitDir(t)
	calls := fakeSystemctl(t, "")

	if err := install("/usr/local/bin/battstat"); err != nil {
		t.Fatalf("install() error = %v", err)
	}

	b, err := os.ReadFile(unitPath())
	if err != nil {
		t.Fatalf("unit file not written: %v", err)
	}
	if !strings.Contains(string(b), "ExecStart=/usr/local/bin/battstat daemon") {
		t.Errorf("unexpected unit file:\n%s", b)
	}

	if err := Uninstall(); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if _, err := os.Stat(unitPath()); !os.IsNotExist(err) {
		t.Errorf("unit file still exists: %v", err)
	}

	want := []string{"daemon-reload", "enable --now battstat.service", "disable --now battstat.service", "daemon-reload"}
	if strings.Join(*calls, ",") != strings.Join(want, ",") {
		t.Errorf("systemctl calls = %q, want %q", *calls, want)
	}
}

func TestInstallSystemctlFails(t *testing.T) {
	useUnitDir(t)
	fakeSystemctl(t, "enable")

	if err := install("/usr/local/bin/battstat"); err == nil {
		t.Errorf("install() error = nil, want error")
	}
}

func TestUninstallNotInstalled(t *testing.T) {
	useUnitDir(t)
	calls := fakeSystemctl(t, "")

	if err := Uninstall(); err != nil {
		t.Fatalf("Uninstall() error = %v", err)
	}
	if len(*calls) != 1 {
		t.Errorf("systemctl calls = %q, want only disable", *calls)
	}
}
