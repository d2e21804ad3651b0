package types

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHash(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "Valid Hash (40 chars)",
			input: strings.Repeat("a", 40),
		},
		{
			name:    "Too Short",
			input:   "abc",
			wantErr: true,
		},
		{
			name:    "Empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "Too Long",
			input:   strings.Repeat("a", 41),
			wantErr: true,
		},
		{
			name:    "Not Hex",
			input:   strings.Repeat("z", 40),
			wantErr: true,
		},
		{
			// decode 能过，但 encode 回来不一致
			name:    "Upper Case",
			input:   strings.Repeat("A", 40),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ParseHash(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, h.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, h.String())
		})
	}
}

func TestHash_ZeroAndShard(t *testing.T) {
	var zero Hash
	assert.True(t, zero.IsZero())
	assert.Equal(t, strings.Repeat("0", 40), zero.String())

	h, err := ParseHash("aabbccddeeff00112233445566778899aabbccdd")
	require.NoError(t, err)
	assert.False(t, h.IsZero())

	dir, file := h.Shard()
	assert.Equal(t, "aa", dir)
	assert.Equal(t, "bbccddeeff00112233445566778899aabbccdd", file)
}

func TestHashFromBytes(t *testing.T) {
	_, err := HashFromBytes([]byte{1, 2, 3})
	assert.Error(t, err)

	raw := make([]byte, HashSize)
	raw[0] = 0xff
	h, err := HashFromBytes(raw)
	require.NoError(t, err)
	assert.Equal(t, "ff", h.String()[:2])
}

func TestHashPrefix_String(t *testing.T) {
	p := HashPrefix("aa")
	assert.Equal(t, "aa", p.String())
}
