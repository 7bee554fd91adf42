package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeNotFound, CodeOf(NotFound("sheet")))
	assert.Equal(t, CodeConflict, CodeOf(fmt.Errorf("ack: %w", Conflict("already acknowledged"))))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestWrapKeepsCause(t *testing.T) {
	err := Internal(sql.ErrConnDone, "failed to list sheets")

	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.Equal(t, "failed to list sheets: "+sql.ErrConnDone.Error(), err.Error())
	assert.Equal(t, "failed to list sheets", MessageOf(err))
	assert.Equal(t, "internal error", MessageOf(errors.New("raw")))
}

func TestIs(t *testing.T) {
	assert.True(t, Is(Invalid("bad"), CodeInvalidArgument))
	assert.False(t, Is(nil, CodeInvalidArgument))
	assert.False(t, Is(Forbidden("no"), CodeUnauthorized))
}
