package version

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	major, minor, patch, err := Parse("1.2.3-rc.1")
	require.NoError(t, err)
	assert.Equal(t, "1", major)
	assert.Equal(t, "2", minor)
	assert.Equal(t, "3-rc.1", patch)

	_, _, _, err = Parse("1.2")
	assert.ErrorIs(t, err, ErrVersionFormat)
}

func TestIncrease(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1.2.3", want: "1.2.4"},
		{in: "1.2.3-beta", want: "1.2.4-beta"},
		{in: "1.2.3+001", want: "1.2.4+001"},
		{in: "1.2.3-rc.1+build.5", want: "1.2.4-rc.1+build.5"},
		{in: "1.2.3+build-7", want: "1.2.4+build-7"},
		{in: "0.0.9", want: "0.0.10"},
		{in: "1.2", wantErr: true},
		{in: "1.2.x", wantErr: true},
		{in: "1.2.-beta", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Increase(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrVersionFormat))
				var fe *FormatError
				assert.True(t, errors.As(err, &fe))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.10.0", "1.9.0", 1},
		{"1.2.10", "1.2.9", 1},
		{"2.0.0", "10.0.0", -1},
		{"1.0.0-alpha", "1.0.0", -1},
		{"1.0.0", "1.0.0-rc.1", 1},
		{"1.0.0-alpha", "1.0.0-alpha.1", -1},
		{"1.0.0-alpha.2", "1.0.0-alpha.10", -1},
		{"1.0.0-1", "1.0.0-alpha", -1},
		{"1.0.0+build.1", "1.0.0+build.2", 0},
		{"v1.2.3", "1.2.3", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			got, err := Compare(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Compare("1.2", "1.2.3")
	assert.ErrorIs(t, err, ErrVersionFormat)
}

func TestIsNewer(t *testing.T) {
	newer, err := IsNewer("1.2.10", "1.2.9")
	require.NoError(t, err)
	assert.True(t, newer)

	newer, err = IsNewer("1.2.9", "1.2.9")
	require.NoError(t, err)
	assert.False(t, newer)
}

func TestReconcile(t *testing.T) {
	assert.Equal(t, "2.0.0", Reconcile("1.0.0", "2.0.0"))
	assert.Equal(t, "1.0.0", Reconcile("1.0.0", ""))
	assert.Equal(t, "", Reconcile("", ""))
}
