package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsCancelled(t *testing.T) {
	require.True(t, IsCancelled(Cancelled))
	require.True(t, IsCancelled(fmt.Errorf("wrap: %w", Cancelled)))
	require.False(t, IsCancelled(errors.New("some other failure")))
}
