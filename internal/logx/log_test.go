package logx

import (
	"bytes"
	"os"
	"os/exec"
	"testing"

	"github.com/rs/zerolog"
)

func TestRedactor(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(NewRedactor(&buf))
	logger.Info().Str("access_token", "abc123").Msg("test")
	tmp := t.TempDir()
	file := tmp + "/log.txt"
	if err := os.WriteFile(file, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	// grep should not find the raw token
	cmd := exec.Command("grep", "abc123", file)
	if err := cmd.Run(); err == nil {
		t.Fatalf("token leaked to log: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("***redacted***")) {
		t.Fatalf("redacted marker missing: %s", buf.String())
	}
}

func TestRedactorCoversStoreKeyAndValue(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(NewRedactor(&buf))
	logger.Info().Str("store_key", "sensitive-blob").Str("value", "plaintext-secret").Msg("test")
	out := buf.String()
	if bytes.Contains([]byte(out), []byte("sensitive-blob")) {
		t.Fatalf("store_key leaked: %s", out)
	}
	if bytes.Contains([]byte(out), []byte("plaintext-secret")) {
		t.Fatalf("value leaked: %s", out)
	}
}

func TestSecretHelper(t *testing.T) {
	got := Secret([]byte("abcd"))
	if bytes.Contains([]byte(got), []byte("abcd")) {
		t.Fatalf("unexpected output: %s", got)
	}
	if !bytes.Contains([]byte(got), []byte("4")) {
		t.Fatalf("missing length: %s", got)
	}
}

func TestLoggerWithAddsContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "store")
	l = l.With("alice", 1, "contacts")
	l.Debug().Msg("fetch")
	out := buf.String()
	for _, want := range []string{`"component":"store"`, `"profile":"alice"`, `"kind":1`, `"category":"contacts"`} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Fatalf("expected %q in %s", want, out)
		}
	}
}
