package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestBinaryRunsWithoutConfig(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	goModPathBytes, err := exec.Command("go", "env", "GOMOD").Output()
	if err != nil {
		t.Fatalf("go env GOMOD: %v", err)
	}
	goModPath := strings.TrimSpace(string(goModPathBytes))
	if goModPath == "" {
		t.Fatalf("go env GOMOD returned empty")
	}
	repoRoot := filepath.Dir(goModPath)

	buildDir := t.TempDir()
	binaryPath := filepath.Join(buildDir, "dmbot")

	build := exec.Command("go", "build", "-o", binaryPath, "./cmd/dmbot")
	build.Dir = repoRoot
	build.Env = os.Environ()
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, string(out))
	}

	outside := t.TempDir()
	copiedBinary := filepath.Join(outside, "dmbot")

	// Use a direct file copy to avoid relying on platform-specific tools.
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		t.Fatalf("read built binary: %v", err)
	}
	if err := os.WriteFile(copiedBinary, data, 0o755); err != nil {
		t.Fatalf("write copied binary: %v", err)
	}

	home := t.TempDir()
	env := append(os.Environ(), "HOME="+home, "XDG_CONFIG_HOME="+filepath.Join(home, ".config"), "XDG_DATA_HOME="+filepath.Join(home, ".local", "share"), "DMBOT_STATE_DRIVER=file")

	version := exec.Command(copiedBinary, "version")
	version.Dir = outside
	version.Env = env
	out, err := version.CombinedOutput()
	if err != nil {
		t.Fatalf("version failed: %v\n%s", err, string(out))
	}
	if !strings.HasPrefix(string(out), "dmbot ") {
		t.Fatalf("unexpected version output: %q", string(out))
	}

	keygen := exec.Command(copiedBinary, "secret", "keygen")
	keygen.Dir = outside
	keygen.Env = env
	if out, err := keygen.CombinedOutput(); err != nil || strings.TrimSpace(string(out)) == "" {
		t.Fatalf("secret keygen failed: %v\n%s", err, string(out))
	}

	show := exec.Command(copiedBinary, "state", "show", "-o", "json")
	show.Dir = outside
	show.Env = env
	if out, err := show.CombinedOutput(); err != nil {
		t.Fatalf("state show failed: %v\n%s", err, string(out))
	}

	help := exec.Command(copiedBinary, "--help")
	help.Dir = outside
	help.Env = env
	if out, err := help.CombinedOutput(); err != nil {
		t.Fatalf("--help failed: %v\n%s", err, string(out))
	}
}
