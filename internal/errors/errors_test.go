package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *ScanError
		want string
	}{
		{
			name: "code and message",
			err:  New(CodeParseFailure, "bad xml"),
			want: "[PARSE_FAILURE] bad xml",
		},
		{
			name: "with op and target",
			err:  New(CodeProbeFailure, "host unreachable").WithOp("enrich").WithTarget("10.0.0.2"),
			want: "[PROBE_FAILURE] enrich: host unreachable (target: 10.0.0.2)",
		},
		{
			name: "with cause",
			err:  Wrap(CodeTimeout, "probe timed out", context.DeadlineExceeded),
			want: "[TIMEOUT] probe timed out: context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("cycle: %w", New(CodeClassificationAmbiguity, "no gateway"))
	assert.Equal(t, CodeClassificationAmbiguity, CodeOf(err))
	assert.Equal(t, CodeUnknown, CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, CodeUnknown, CodeOf(nil))
}

func TestIsCode(t *testing.T) {
	inner := New(CodeParseFailure, "bad xml")
	outer := Wrap(CodeProbeFailure, "enrichment failed", inner)

	assert.True(t, IsCode(outer, CodeProbeFailure))
	assert.True(t, IsCode(outer, CodeParseFailure))
	assert.False(t, IsCode(outer, CodeToolReported))
	assert.False(t, IsCode(nil, CodeProbeFailure))
	assert.False(t, Is(outer, context.Canceled))
}

func TestUnwrap(t *testing.T) {
	err := Wrap(CodeTimeout, "probe timed out", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
