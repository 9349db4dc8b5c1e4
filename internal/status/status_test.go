package status

import (
	"os"
	"path/filepath"
	"testing"
)

func intp(v int) *int { return &v }

func TestResolvePrecedence(t *testing.T) {
	cases := []struct {
		name string
		in   Inputs
		want Code
	}{
		{"fresh dir wins over running override", Inputs{FreshInstall: true, Override: OverrideRunning}, NewSetup},
		{"fresh dir wins over live handle", Inputs{FreshInstall: true, HandleAlive: true}, NewSetup},
		{"pending override", Inputs{Override: OverridePending}, Pending},
		{"running override without live handle", Inputs{Override: OverrideRunning}, Running},
		{"running override with stale exit code", Inputs{Override: OverrideRunning, ExitCode: intp(1)}, Running},
		{"live handle no exit code", Inputs{HandleAlive: true}, Running},
		{"live handle with recorded exit code", Inputs{HandleAlive: true, ExitCode: intp(1)}, Stopped},
		{"dead with nonzero exit", Inputs{ExitCode: intp(1)}, Error},
		{"dead with negative exit", Inputs{ExitCode: intp(-9)}, Error},
		{"dead with zero exit", Inputs{ExitCode: intp(0)}, Stopped},
		{"nothing known", Inputs{}, Stopped},
	}
	for _, tc := range cases {
		if got := Resolve(tc.in); got != tc.want {
			t.Errorf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestFreshInstall(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	if !FreshInstall(missing) {
		t.Fatalf("missing dir should be fresh")
	}

	empty := t.TempDir()
	if !FreshInstall(empty) {
		t.Fatalf("empty dir should be fresh")
	}

	onlyEula := t.TempDir()
	if err := os.WriteFile(filepath.Join(onlyEula, "eula.txt"), []byte("eula=true\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	if !FreshInstall(onlyEula) {
		t.Fatalf("dir with only eula.txt should be fresh")
	}

	installed := t.TempDir()
	if err := os.WriteFile(filepath.Join(installed, "server.jar"), []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}
	if FreshInstall(installed) {
		t.Fatalf("dir with server.jar should not be fresh")
	}
}
