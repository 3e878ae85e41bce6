package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimit(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		def     int
		want    int
		wantErr bool
	}{
		{"empty uses default", "", 20, 20, false},
		{"non-numeric uses default", "abc", 20, 20, false},
		{"numeric wins", "7", 20, 7, false},
		{"surrounding whitespace tolerated", " 7 ", 20, 7, false},
		{"lower bound ok", "1", 20, 1, false},
		{"upper bound ok", "100", 20, 100, false},
		{"zero rejected", "0", 20, 0, true},
		{"negative rejected", "-3", 20, 0, true},
		{"over max rejected, not clamped", "101", 20, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Limit(tt.raw, tt.def)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "between 1 and 100")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
