package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("book: %w", Conflict(CodeSlotUnavailable, "slot already booked"))

	assert.True(t, errors.Is(err, &Error{Code: CodeSlotUnavailable}))
	assert.False(t, errors.Is(err, &Error{Code: CodeSlotOverlap}))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, CodeSlotUnavailable, CodeOf(err))
}

func TestError_Retryable(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want bool
	}{
		{"validation", &Error{Kind: KindValidation, Code: CodeValidation}, true},
		{"lost race", &Error{Kind: KindStaleState, Code: CodeSlotUnavailable}, true},
		{"slot taken", Conflict(CodeSlotUnavailable, "taken"), true},
		{"already canceled", Conflict(CodeAlreadyCanceled, "done"), false},
		{"not found", NotFound(CodeScheduleNotFound, "missing"), false},
		{"internal", Internal(errors.New("disk"), "store"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Retryable())
		})
	}
}

func TestValidation(t *testing.T) {
	var v Validation
	require.NoError(t, v.Err())

	v.Add("doctorId", "is required")
	v.Add("doctorId", "ignored second message")
	v.Add("timeSlot", "start must be before end")

	err := v.Err()
	require.Error(t, err)
	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, KindValidation, e.Kind)
	assert.Equal(t, "is required", e.Fields["doctorId"])
	assert.Equal(t, "validation failed (doctorId: is required; timeSlot: start must be before end)", e.Error())
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}
