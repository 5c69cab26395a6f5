package limits

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestControlOverheadCalculation verifies that ControlOverhead is header plus CRC.
func TestControlOverheadCalculation(t *testing.T) {
	assert.Equal(t, 9, ControlOverhead)
	assert.Equal(t, ControlHeaderSize+ControlCRCSize, ControlOverhead)
}

func TestMaxControlBody_FrameFitsSixteenBits(t *testing.T) {
	assert.Equal(t, 0xFFFF, MaxControlFrameSize)
	assert.Equal(t, 65526, MaxControlBody)
	assert.Equal(t, MaxControlFrameSize, ControlOverhead+MaxControlBody)
}

func TestValidateMessageSize(t *testing.T) {
	tests := []struct {
		name    string
		message []byte
		maxSize int
		wantErr error
	}{
		{"empty message", nil, 10, ErrMessageEmpty},
		{"at limit", make([]byte, 10), 10, nil},
		{"over limit", make([]byte, 11), 10, ErrMessageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageSize(tt.message, tt.maxSize)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestValidateDatagramSize(t *testing.T) {
	assert.ErrorIs(t, ValidateDatagramSize(0, MaxDatagramSize), ErrMessageEmpty)
	assert.ErrorIs(t, ValidateDatagramSize(-1, MaxDatagramSize), ErrMessageEmpty)
	assert.NoError(t, ValidateDatagramSize(1, MaxDatagramSize))
	assert.NoError(t, ValidateDatagramSize(MaxDatagramSize, MaxDatagramSize))
	assert.ErrorIs(t, ValidateDatagramSize(MaxDatagramSize+1, MaxDatagramSize), ErrMessageTooLarge)
}

func TestValidateStreamBodyLength(t *testing.T) {
	assert.ErrorIs(t, ValidateStreamBodyLength(0, MaxDatagramSize), ErrMessageEmpty)
	assert.ErrorIs(t, ValidateStreamBodyLength(1, MaxDatagramSize), ErrMessageEmpty)
	assert.NoError(t, ValidateStreamBodyLength(ControlCRCSize, MaxDatagramSize))
	assert.NoError(t, ValidateStreamBodyLength(100, 107))

	err := ValidateStreamBodyLength(101, 107)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	assert.Contains(t, err.Error(), "108")
}

func TestClampDatagramSize(t *testing.T) {
	assert.Equal(t, MaxDatagramSize, ClampDatagramSize(0))
	assert.Equal(t, MinDatagramSize, ClampDatagramSize(3))
	assert.Equal(t, 1500, ClampDatagramSize(1500))
	assert.Equal(t, MaxDatagramSize, ClampDatagramSize(1<<20))
}
