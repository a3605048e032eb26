package loans

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(ErrInvalid("x")))
	assert.Equal(t, http.StatusNotFound, ToHTTPStatus(ErrNotFound("x")))
	assert.Equal(t, http.StatusConflict, ToHTTPStatus(errSequenceTaken))
	assert.Equal(t, http.StatusUnprocessableEntity, ToHTTPStatus(ErrMalformed("x")))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errPersistence("op", errDiskFull)))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errDiskFull))
}

func TestErrPersistence(t *testing.T) {
	assert.NoError(t, errPersistence("op", nil))

	wrapped := errPersistence("create loan", errDiskFull)
	assert.ErrorIs(t, wrapped, errDiskFull)
	assert.True(t, IsCode(wrapped, CodeInternal))

	// API errors pass through untouched
	assert.Same(t, errSequenceTaken, errPersistence("create loan", errSequenceTaken))
}
