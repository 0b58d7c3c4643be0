package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTargets(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		prefix  int
		want    []string
		wantErr bool
	}{
		{
			name:   "range equal to chunk",
			target: "192.168.1.0/24",
			prefix: 24,
			want:   []string{"192.168.1.0/24"},
		},
		{
			name:   "host bits are masked",
			target: "192.168.1.77/24",
			prefix: 24,
			want:   []string{"192.168.1.0/24"},
		},
		{
			name:   "split /22 into /24",
			target: "10.0.0.0/22",
			prefix: 24,
			want:   []string{"10.0.0.0/24", "10.0.1.0/24", "10.0.2.0/24", "10.0.3.0/24"},
		},
		{
			name:   "single address",
			target: "8.8.8.8",
			prefix: 24,
			want:   []string{"8.8.8.8"},
		},
		{
			name:   "ipv6 left to nmap",
			target: "fd00::/64",
			prefix: 24,
			want:   []string{"fd00::/64"},
		},
		{
			name:    "too many chunks",
			target:  "10.0.0.0/8",
			prefix:  24,
			wantErr: true,
		},
		{
			name:    "garbage",
			target:  "nope",
			prefix:  24,
			wantErr: true,
		},
		{
			name:    "empty",
			target:  " ",
			prefix:  24,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChunkTargets(tt.target, tt.prefix)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
