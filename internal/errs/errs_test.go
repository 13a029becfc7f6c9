package errs

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapKeepsKindThroughChain(t *testing.T) {
	err := Wrap(KindTransport, io.ErrUnexpectedEOF, "read frame")
	require.Error(t, err)

	outer := errors.Wrap(err, "session")
	assert.Equal(t, KindTransport, KindOf(outer))
	assert.True(t, Is(outer, KindTransport))
	assert.True(t, errors.Is(outer, io.ErrUnexpectedEOF))
	assert.Contains(t, outer.Error(), "TransportError: read frame")
}

func TestWithCode(t *testing.T) {
	err := WithCode(KindAuth, "InvalidToken", "The token is invalid.")
	assert.Equal(t, "AuthError(InvalidToken): The token is invalid.", err.Error())
	assert.Equal(t, "InvalidToken", CodeOf(errors.WithMessage(err, "authorize")))
	assert.False(t, KindAuth.Recoverable())
	assert.True(t, KindRequestTimeout.Recoverable())
	assert.True(t, KindStakeRounded.Warning())
	assert.True(t, KindStakeCapped.Warning())
	assert.False(t, KindOrderUncertain.Warning())
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(io.EOF))
	assert.Nil(t, Wrap(KindAPI, nil, "noop"))
	assert.False(t, Is(nil, KindAPI))
}
