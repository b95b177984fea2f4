package errclass_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashtrail-project/hashtrail/pkg/errclass"
)

func TestError_Error(t *testing.T) {
	err := errclass.ErrInvalidTimestamp.WithMessage("future time exceeds tolerance")
	assert.Equal(t, "E_INVALID_TIMESTAMP: future time exceeds tolerance", err.Error())
	assert.Equal(t, "E_RATE_LIMITED", errclass.ErrRateLimited.Error())
}

func TestError_Is(t *testing.T) {
	err := errclass.ErrStaleTail.WithMessagef("expected index %d", 4)
	require.True(t, errors.Is(err, errclass.ErrStaleTail))
	require.False(t, errors.Is(err, errclass.ErrMalformedInput))
}

func TestError_IsThroughWrap(t *testing.T) {
	wrapped := fmt.Errorf("record: %w", errclass.ErrMalformedInput.WithMessage("bad kind"))
	assert.True(t, errors.Is(wrapped, errclass.ErrMalformedInput))
	assert.Equal(t, "E_MALFORMED_INPUT", errclass.Code(wrapped))
	assert.Equal(t, "", errclass.Code(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		nil:                                   http.StatusOK,
		errclass.ErrMalformedInput:            http.StatusBadRequest,
		errclass.ErrInvalidTimestamp:          http.StatusBadRequest,
		errclass.ErrAlgorithmUnsupported:      http.StatusBadRequest,
		errclass.ErrPayloadTooLarge:           http.StatusRequestEntityTooLarge,
		errclass.ErrRateLimited:               http.StatusTooManyRequests,
		errclass.ErrStaleTail.WithMessage("x"): http.StatusConflict,
		errors.New("boom"):                    http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, errclass.HTTPStatus(err), "error %v", err)
	}
}
