package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr error
	}{
		{in: "5000", want: 5000},
		{in: " 42 ", want: 42},
		{in: "+7", want: 7},
		{in: "4294967295", want: 4294967295},
		{in: "", wantErr: ErrEmptyAmount},
		{in: "   ", wantErr: ErrEmptyAmount},
		{in: "0", wantErr: ErrNotPositive},
		{in: "-5", wantErr: ErrNotPositive},
		{in: "-99999999999999999999", wantErr: ErrNotPositive},
		{in: "abc", wantErr: ErrNotNumeric},
		{in: "-abc", wantErr: ErrNotNumeric},
		{in: "12.5", wantErr: ErrNotNumeric},
		{in: "0x10", wantErr: ErrNotNumeric},
		{in: "4294967296", wantErr: ErrOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeHandle(t *testing.T) {
	raw := "0xab" + strings.Repeat("00", 30) + "01"
	h, err := DecodeHandle(raw)
	require.NoError(t, err)
	assert.Equal(t, byte(0xab), h[0])
	assert.Equal(t, byte(0x01), h[31])
	assert.Equal(t, raw, EncodeHex(h[:]))

	_, err = DecodeHandle("0x1234")
	require.Error(t, err)

	_, err = DecodeHandle("0xzz")
	require.Error(t, err)
}

func TestStrip0x(t *testing.T) {
	assert.Equal(t, "abcd", Strip0x("0xabcd"))
	assert.Equal(t, "abcd", Strip0x("0Xabcd"))
	assert.Equal(t, "abcd", Strip0x("abcd"))
	assert.Equal(t, "", Strip0x("0x"))
}
