package errors

import (
	"database/sql"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	clone := Clone(ErrUnauthorized, "invalid credentials")

	assert.Equal(t, "invalid credentials", clone.Message)
	assert.Equal(t, "unauthorized", ErrUnauthorized.Message)
	assert.True(t, errors.Is(clone, ErrUnauthorized))
	assert.False(t, errors.Is(clone, ErrNotFound))
}

func TestFromError(t *testing.T) {
	assert.Nil(t, FromError(nil))

	wrapped := Wrap(sql.ErrNoRows, ErrNotFound.Code, http.StatusNotFound, "user not found")
	assert.Same(t, wrapped, FromError(wrapped))
	assert.ErrorIs(t, wrapped, sql.ErrNoRows)

	plain := FromError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, plain.Status)
	assert.Equal(t, "internal server error: boom", plain.Error())
}
