package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mfaFinding = FingerprintInput{
	Title:       "Missing MFA for admin accounts",
	Category:    "auth",
	Severity:    "high",
	Description: "Admin accounts can sign in without a second factor",
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"  Missing   MFA  ": "missing mfa",
		"tab\tand\nnewline": "tab and newline",
		"ALREADY normal":    "already normal",
		" spaced out ":      "spaced out",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestCanonicalContent(t *testing.T) {
	got := CanonicalContent(mfaFinding)
	assert.Equal(t, "missing mfa for admin accounts|auth|high|admin accounts can sign in without a second factor", got)
}

func TestFingerprint_KnownValues(t *testing.T) {
	// FNV-1a 32 over the canonical string, zero padded to 16 hex chars.
	assert.Equal(t, "00000000e89bd5b8", Fingerprint(mfaFinding))
	assert.Equal(t, "0000000013fe3a3b", Fingerprint(FingerprintInput{}))
}

func TestFingerprint_Deterministic(t *testing.T) {
	first := Fingerprint(mfaFinding)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Fingerprint(mfaFinding))
	}
	assert.Len(t, first, 16)
}

func TestFingerprint_NormalizationInsensitive(t *testing.T) {
	noisy := FingerprintInput{
		Title:       "  missing   mfa FOR admin accounts  ",
		Category:    " AUTH ",
		Severity:    "high",
		Description: "Admin accounts can sign in\nwithout a   second factor",
	}
	assert.Equal(t, Fingerprint(mfaFinding), Fingerprint(noisy))
}

func TestFingerprint_ContentSensitive(t *testing.T) {
	changed := mfaFinding
	changed.Description = "Admin accounts can sign in without a password"
	assert.NotEqual(t, Fingerprint(mfaFinding), Fingerprint(changed))

	retitled := mfaFinding
	retitled.Title = "Missing MFA for service accounts"
	assert.NotEqual(t, Fingerprint(mfaFinding), Fingerprint(retitled))
}

func TestFingerprint_SeverityParticipates(t *testing.T) {
	downgraded := mfaFinding
	downgraded.Severity = "medium"
	assert.NotEqual(t, Fingerprint(mfaFinding), Fingerprint(downgraded))
}

func TestFingerprintWith(t *testing.T) {
	fnv, err := FingerprintWith(AlgorithmFNV1a32, mfaFinding)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(mfaFinding), fnv)

	dflt, err := FingerprintWith("", mfaFinding)
	require.NoError(t, err)
	assert.Equal(t, fnv, dflt)

	wide, err := FingerprintWith(AlgorithmXXHash64, mfaFinding)
	require.NoError(t, err)
	assert.Len(t, wide, 16)
	assert.NotEqual(t, fnv, wide)

	_, err = FingerprintWith("md5", mfaFinding)
	assert.Error(t, err)
}
