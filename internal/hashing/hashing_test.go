package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_KnownVectors(t *testing.T) {
	tests := []struct {
		method string
		want   string
	}{
		{"", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"sha256", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{"SHA224", "23097d223405d8228642a477bda255b32aadbce4bda0b3f7e36c9da7"},
		{"sha384", "cb00753f45a35e8bb5a03d699ac65007272c32ab0eded1631a8b605a43ff5bed8086072ba1e7cc2358baeca134c825a7"},
		{"sha512", "ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f"},
		{"md5", "900150983cd24fb0d6963f7d28e17f72"},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			got, err := Hash("abc", tt.method)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			ok, err := Verify("abc", tt.want, tt.method)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = Verify("abd", tt.want, tt.method)
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHash_DependsOnInput(t *testing.T) {
	a, err := Hash("secret", "sha256")
	require.NoError(t, err)
	b, err := Hash("other", "sha256")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerify_UppercaseDigest(t *testing.T) {
	ok, err := Verify("abc", strings.ToUpper("900150983cd24fb0d6963f7d28e17f72"), "md5")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBcrypt(t *testing.T) {
	h, err := Hash("hunter2", Bcrypt)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h, "$2"))

	ok, err := Verify("hunter2", h, Bcrypt)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify("hunter3", h, Bcrypt)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Verify("hunter2", "not a bcrypt hash", Bcrypt)
	assert.Error(t, err)
}

func TestUnsupported(t *testing.T) {
	_, err := Hash("abc", "crc32")
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
	_, err = Verify("abc", "00", "crc32")
	assert.ErrorIs(t, err, ErrUnsupportedMethod)
	assert.False(t, Supported("crc32"))
	assert.True(t, Supported(""))
	assert.Equal(t, []string{"bcrypt", "md5", "sha224", "sha256", "sha384", "sha512"}, Methods())
}
