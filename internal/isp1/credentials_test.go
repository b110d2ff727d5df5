package isp1

import (
	"encoding/asn1"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sle-engine/internal/cds"
)

const (
	testPeer  = "MISSION1"
	testDelay = 60
)

var testPassword = []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02}

// buildAt constructs encoded credentials carrying the given timestamp, the
// way a remote peer would.
func buildAt(t *testing.T, at time.Time, username string, password []byte, algo HashAlgorithm) []byte {
	t.Helper()
	timeBytes, err := cds.EncodeMilli(at.UnixMilli(), 0)
	require.NoError(t, err)
	protected, err := computeProtected(timeBytes, 12345, username, password, algo)
	require.NoError(t, err)
	encoded, err := asn1.Marshal(isp1Credentials{
		Time:         timeBytes,
		RandomNumber: 12345,
		TheProtected: protected,
	})
	require.NoError(t, err)
	return encoded
}

func TestBuild_Unfilled(t *testing.T) {
	c, err := Build(false, testPeer, testPassword, SHA1)
	require.NoError(t, err)
	assert.False(t, c.Used())
	assert.Nil(t, c.Bytes())
}

func TestBuild_Filled(t *testing.T) {
	c, err := Build(true, testPeer, testPassword, SHA256)
	require.NoError(t, err)
	assert.True(t, c.Used())
	require.NotEmpty(t, c.Bytes())

	var decoded isp1Credentials
	_, err = asn1.Unmarshal(c.Bytes(), &decoded)
	require.NoError(t, err)
	assert.Len(t, decoded.Time, cds.MilliLen)
	assert.Len(t, decoded.TheProtected, SHA256.Size())
	assert.GreaterOrEqual(t, decoded.RandomNumber, int64(0))
	assert.LessOrEqual(t, decoded.RandomNumber, int64(0x7FFFFFFF))
}

func TestBuild_FreshMaterialPerCall(t *testing.T) {
	c1, err := Build(true, testPeer, testPassword, SHA1)
	require.NoError(t, err)
	c2, err := Build(true, testPeer, testPassword, SHA1)
	require.NoError(t, err)
	assert.NotEqual(t, c1.Bytes(), c2.Bytes())
}

func TestVerify_AcceptsFreshCredentials(t *testing.T) {
	for _, algo := range []HashAlgorithm{SHA1, SHA256} {
		t.Run(algo.String(), func(t *testing.T) {
			c, err := Build(true, testPeer, testPassword, algo)
			require.NoError(t, err)
			assert.True(t, Verify(testPeer, testPassword, algo, c.Bytes(), testDelay))
		})
	}
}

func TestVerify_RejectsStaleCredentials(t *testing.T) {
	stale := buildAt(t, time.Now().Add(-2*time.Minute), testPeer, testPassword, SHA1)
	assert.False(t, Verify(testPeer, testPassword, SHA1, stale, testDelay))
}

func TestVerify_AcceptsWithinDelayWindow(t *testing.T) {
	recent := buildAt(t, time.Now().Add(-30*time.Second), testPeer, testPassword, SHA1)
	assert.True(t, Verify(testPeer, testPassword, SHA1, recent, testDelay))
}

func TestVerify_RejectsWrongPassword(t *testing.T) {
	c, err := Build(true, testPeer, testPassword, SHA1)
	require.NoError(t, err)
	assert.False(t, Verify(testPeer, []byte("not-the-password"), SHA1, c.Bytes(), testDelay))
}

func TestVerify_RejectsWrongAlgorithm(t *testing.T) {
	c, err := Build(true, testPeer, testPassword, SHA1)
	require.NoError(t, err)
	assert.False(t, Verify(testPeer, testPassword, SHA256, c.Bytes(), testDelay))
}

func TestVerify_RejectsTamperedProtected(t *testing.T) {
	encoded := buildAt(t, time.Now(), testPeer, testPassword, SHA256)

	var decoded isp1Credentials
	_, err := asn1.Unmarshal(encoded, &decoded)
	require.NoError(t, err)

	for i := range decoded.TheProtected {
		mutated := isp1Credentials{
			Time:         decoded.Time,
			RandomNumber: decoded.RandomNumber,
			TheProtected: append([]byte(nil), decoded.TheProtected...),
		}
		mutated.TheProtected[i] ^= 0x01
		remarshaled, err := asn1.Marshal(mutated)
		require.NoError(t, err)
		assert.False(t, Verify(testPeer, testPassword, SHA256, remarshaled, testDelay),
			"mutation of protected byte %d must be rejected", i)
	}
}

func TestVerify_RejectsGarbage(t *testing.T) {
	assert.False(t, Verify(testPeer, testPassword, SHA1, []byte{0x01, 0x02, 0x03}, testDelay))
	assert.False(t, Verify(testPeer, testPassword, SHA1, nil, testDelay))
}

func TestVerify_RejectsUnderflowTime(t *testing.T) {
	// Day count 1 is far before the Unix epoch; the decode fails and the
	// credentials are rejected without an error escaping.
	timeBytes := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	protected, err := computeProtected(timeBytes, 1, testPeer, testPassword, SHA1)
	require.NoError(t, err)
	encoded, err := asn1.Marshal(isp1Credentials{Time: timeBytes, RandomNumber: 1, TheProtected: protected})
	require.NoError(t, err)

	assert.False(t, Verify(testPeer, testPassword, SHA1, encoded, testDelay))
}

func TestHashInput_CanonicalEncoding(t *testing.T) {
	timeBytes, err := cds.EncodeMilli(0, 0)
	require.NoError(t, err)
	der, err := asn1.Marshal(hashInput{
		Time:         timeBytes,
		RandomNumber: 1,
		UserName:     asn1.RawValue{Class: asn1.ClassUniversal, Tag: tagVisibleString, Bytes: []byte("AB")},
		PassWord:     []byte{0x00},
	})
	require.NoError(t, err)

	expected := []byte{
		0x30, 0x14, // SEQUENCE, 20 bytes
		0x04, 0x08, 0x11, 0x1F, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // time OCTET STRING
		0x02, 0x01, 0x01, // randomNumber INTEGER 1
		0x1A, 0x02, 0x41, 0x42, // userName VisibleString "AB"
		0x04, 0x01, 0x00, // passWord OCTET STRING
	}
	assert.Equal(t, expected, der)
}

func TestParseHashAlgorithm(t *testing.T) {
	tt := []struct {
		in       string
		expected HashAlgorithm
		ok       bool
	}{
		{"SHA-1", SHA1, true},
		{"sha1", SHA1, true},
		{"SHA-256", SHA256, true},
		{"sha256", SHA256, true},
		{"md5", SHA1, false},
	}
	for _, tc := range tt {
		t.Run(tc.in, func(t *testing.T) {
			algo, err := ParseHashAlgorithm(tc.in)
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.expected, algo)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
