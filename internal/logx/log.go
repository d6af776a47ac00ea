// Package logx wraps zerolog with the redaction and component-tagging
// conventions used across the storage engine: a redacting writer, one-off
// telemetry events, and a child logger tagged with profile/kind/category —
// never raw name or value, since those sit right next to ciphertext and are
// easy to leak by habit. The storage engine logs only such events (profile
// creation, rekey, an ignored FOR UPDATE, reaper passes); its operations do
// not log on entry, exit or failure.
package logx

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

// baseRedactedFields are the JSON field-name fragments redacted in every
// Logger: application secrets (token/secret/password/key) plus the storage
// engine's own key and ciphertext-adjacent material (wrap key URIs, store
// key blobs, entry values, tag values).
var baseRedactedFields = []string{
	"token", "secret", "password", "key", "wrap_key", "store_key", "value", "tag_value",
}

// NewRedactor returns a writer that redacts sensitive field values before
// they reach w. extraFields adds caller-specific field-name fragments (e.g.
// a component introducing its own secret-shaped field) on top of
// baseRedactedFields.
func NewRedactor(w io.Writer, extraFields ...string) io.Writer {
	return &redactor{w: w, re: compileFieldRE(append(baseRedactedFields, extraFields...))}
}

func compileFieldRE(fields []string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)"([^"\\]*?(` + strings.Join(fields, "|") + `)[^"\\]*)":"[^"]*"`)
}

type redactor struct {
	w  io.Writer
	re *regexp.Regexp
}

func (r *redactor) Write(p []byte) (int, error) {
	s := r.re.ReplaceAllStringFunc(string(p), func(m string) string {
		parts := strings.SplitN(m, ":", 2)
		if len(parts) != 2 {
			return m
		}
		return parts[0] + ":\"***redacted***\""
	})
	if _, err := r.w.Write([]byte(s)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Secret returns a placeholder for a sensitive value, preserving its length
// so log output can still hint at magnitude (e.g. "did the blob grow") for
// debugging without revealing content.
func Secret(val []byte) string {
	if len(val) == 0 {
		return ""
	}
	return fmt.Sprintf("***redacted*** (%d bytes)", len(val))
}

// Logger is a component-tagged zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// New builds a Logger writing redacted JSON to w, tagged with component.
// extraFields adds component-specific sensitive field-name fragments to the
// redactor on top of baseRedactedFields.
func New(w io.Writer, component string, extraFields ...string) Logger {
	l := zerolog.New(NewRedactor(w, extraFields...)).With().Timestamp().Str("component", component).Logger()
	return Logger{l}
}

// Default builds a Logger writing to stderr.
func Default(component string, extraFields ...string) Logger {
	return New(os.Stderr, component, extraFields...)
}

// Event logs a one-off telemetry event at info level with optional
// plaintext fields. Callers must not pass ciphertext-adjacent values — the
// redactor masks a field only when its name matches a redacted fragment,
// not by looking at the value; it's meant for counters and URIs, e.g.
// "rekey_completed" with the number of re-wrapped profiles.
func (l Logger) Event(name string, fields map[string]string) {
	e := l.Logger.Info().Str("event", name)
	for k, v := range fields {
		e = e.Str(k, v)
	}
	e.Msg("telemetry")
}

// With returns a child logger adding a profile/kind/category context —
// the only entry-identifying fields considered safe to log, since name and
// value stay encrypted at rest and must not appear in plaintext in logs
// either.
func (l Logger) With(profile string, kind int16, category string) Logger {
	child := l.Logger.With().
		Str("profile", profile).
		Int16("kind", kind).
		Str("category", category).
		Logger()
	return Logger{child}
}
