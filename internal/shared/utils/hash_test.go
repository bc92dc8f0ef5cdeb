package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasherKnownVectors(t *testing.T) {
	assert.Equal(t,
		"ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		NewHasher(SHA256).HashString("abc"))
	assert.Equal(t,
		"ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f",
		NewHasher(SHA512).HashString("abc"))
}

func TestMultiHashMatchesSingle(t *testing.T) {
	data := bytes.Repeat([]byte("local web app "), 1000)

	sums, err := MultiHash(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, NewHasher(SHA256).Hash(data), sums[SHA256])
	assert.Equal(t, NewHasher(SHA512).Hash(data), sums[SHA512])
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    HashAlgorithm
		wantErr bool
	}{
		{"", SHA256, false},
		{"sha256", SHA256, false},
		{"SHA-512", SHA512, false},
		{"md5", "", true},
	}

	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
