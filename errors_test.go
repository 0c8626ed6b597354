package gomux

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKinds(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := NewError(KindWrite, "sink", cause)

	require.ErrorIs(t, err, ErrWrite)
	require.NotErrorIs(t, err, ErrRead)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "sink: write error: disk full", err.Error())

	wrapped := fmt.Errorf("remux: %w", err)
	require.ErrorIs(t, wrapped, ErrWrite)

	var e *Error
	require.ErrorAs(t, wrapped, &e)
	require.Equal(t, KindWrite, e.Kind)
	require.Equal(t, "sink", e.Component)
}

func TestNewErrorKeepsKind(t *testing.T) {
	t.Parallel()

	probe := &Error{Kind: KindProbe, Err: errors.New("no moov")}
	err := NewError(KindOpen, "source", fmt.Errorf("mp4: %w", probe))
	require.ErrorIs(t, err, ErrProbe)
	require.NotErrorIs(t, err, ErrOpen)
	require.Equal(t, "source", err.Component)

	already := NewError(KindRead, "source", io.ErrUnexpectedEOF)
	require.Same(t, already, NewError(KindWrite, "sink", already))
}

func TestEndOfStream(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, ErrEndOfStream, io.EOF)
	require.Equal(t, "allocation error", (&Error{Kind: KindAllocation}).Error())
	require.Equal(t, "unknown", ErrorKind(0).String())
}
