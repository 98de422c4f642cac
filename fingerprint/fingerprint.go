// Package fingerprint computes the stable identity hash the kernel uses
// in place of the original implementation's serialized-callable
// comparison. A compiled Go binary cannot pickle a closure and compare
// bytes across processes, so a Pipe's identity is instead a hash of its
// module path, symbol name, normalized source text (when available),
// and a caller-supplied version tag. Two registrations that hash equal
// are treated as the same Pipe.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Source describes the pieces of a pipe's origin the kernel can actually
// observe: a compiled binary has no access to a function's bytecode, so
// this is the closest analogue of the source text used for interactive
// (func.__module__ == "__main__"-equivalent) callers.
type Source struct {
	ModulePath string // import path, or "" for a handle registered ad hoc
	SymbolName string
	SourceText string // optional: body text for callers that register from a script/REPL-like context
	Version    string // caller-supplied tag (build version, content hash of the defining file, ...)
}

var leadingLineRef = regexp.MustCompile(`(?m)^\s*//\s*line\s+\d+.*$`)

// Normalize strips artifacts that vary between otherwise-identical
// definitions of the same interactively-registered source text --
// originating file path and line-number comments -- mirroring the
// original's filename/first-line-number rewrite for redefinitions across
// sessions. Two interactive registrations of the same body text produce
// the same normalized string regardless of where they were typed.
func Normalize(sourceText string) string {
	s := leadingLineRef.ReplaceAllString(sourceText, "")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Fingerprint returns the stable hex digest identifying src. Empty
// SourceText is permitted: registered-from-a-package pipes are
// identified by module path, symbol name, and version alone.
func Fingerprint(src Source) string {
	h := sha256.New()
	h.Write([]byte(src.ModulePath))
	h.Write([]byte{0})
	h.Write([]byte(src.SymbolName))
	h.Write([]byte{0})
	h.Write([]byte(Normalize(src.SourceText)))
	h.Write([]byte{0})
	h.Write([]byte(src.Version))
	return hex.EncodeToString(h.Sum(nil))
}

// Identity is the full tuple the Pipe dedup key is built from, per the
// kernel's (module_name, func_name, return_volatile, is_deterministic,
// serialized(func), serialized(output_func)) identity requirement --
// with the two serialized-callable slots replaced by fingerprints.
type Identity struct {
	ModuleName        string
	FuncName          string
	ReturnVolatile    bool
	IsDeterministic   bool
	Fingerprint       string
	OutputFingerprint string // empty when no output func is registered
}

// Key returns a single string safe to use as a map/SQL lookup key for an
// Identity, collision-free because every variable-length field is
// length-prefixed implicitly by the NUL separator plus the fixed-width
// hash fields that never contain one.
func (id Identity) Key() string {
	b := []byte(id.ModuleName)
	b = append(b, 0)
	b = append(b, []byte(id.FuncName)...)
	b = append(b, 0)
	if id.ReturnVolatile {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	if id.IsDeterministic {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = append(b, 0)
	b = append(b, []byte(id.Fingerprint)...)
	b = append(b, 0)
	b = append(b, []byte(id.OutputFingerprint)...)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
