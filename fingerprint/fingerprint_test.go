package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStripsLineRefsAndTrailingWhitespace(t *testing.T) {
	src := "// line 12 foo.py\ndef f():   \n    return 1  \n"
	assert.Equal(t, "def f():\n    return 1", Normalize(src))
}

func TestNormalizeIsIdempotent(t *testing.T) {
	src := "a\nb\n"
	once := Normalize(src)
	twice := Normalize(once)
	assert.Equal(t, once, twice)
}

func TestFingerprintStableForIdenticalInput(t *testing.T) {
	src := Source{ModulePath: "pkg", SymbolName: "Func", SourceText: "body", Version: "v1"}
	assert.Equal(t, Fingerprint(src), Fingerprint(src))
}

func TestFingerprintDiffersOnAnyField(t *testing.T) {
	base := Source{ModulePath: "pkg", SymbolName: "Func", SourceText: "body", Version: "v1"}
	variants := []Source{
		{ModulePath: "other", SymbolName: base.SymbolName, SourceText: base.SourceText, Version: base.Version},
		{ModulePath: base.ModulePath, SymbolName: "Other", SourceText: base.SourceText, Version: base.Version},
		{ModulePath: base.ModulePath, SymbolName: base.SymbolName, SourceText: "other body", Version: base.Version},
		{ModulePath: base.ModulePath, SymbolName: base.SymbolName, SourceText: base.SourceText, Version: "v2"},
	}
	baseFP := Fingerprint(base)
	for _, v := range variants {
		assert.NotEqual(t, baseFP, Fingerprint(v))
	}
}

func TestFingerprintIgnoresLineRefNoise(t *testing.T) {
	a := Fingerprint(Source{SourceText: "// line 1 a.py\nbody()"})
	b := Fingerprint(Source{SourceText: "// line 99 b.py\nbody()"})
	assert.Equal(t, a, b)
}

func TestIdentityKeyStableAndSensitiveToFlags(t *testing.T) {
	id := Identity{
		ModuleName:      "pkg",
		FuncName:        "Func",
		ReturnVolatile:  false,
		IsDeterministic: true,
		Fingerprint:     "abc",
	}
	k1 := id.Key()
	k2 := id.Key()
	assert.Equal(t, k1, k2)

	flipped := id
	flipped.ReturnVolatile = true
	assert.NotEqual(t, k1, flipped.Key())

	flipped2 := id
	flipped2.IsDeterministic = false
	assert.NotEqual(t, k1, flipped2.Key())
}

func TestIdentityKeyDistinguishesOutputFingerprint(t *testing.T) {
	id := Identity{ModuleName: "pkg", FuncName: "f", Fingerprint: "abc"}
	withOutput := id
	withOutput.OutputFingerprint = "def"
	assert.NotEqual(t, id.Key(), withOutput.Key())
}
