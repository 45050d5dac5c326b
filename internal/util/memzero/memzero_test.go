package memzero

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZero(t *testing.T) {
	b := bytes.Repeat([]byte{0xaa}, 48)
	Zero(b)
	require.Equal(t, make([]byte, 48), b)

	Zero(nil)
}

func TestKey(t *testing.T) {
	type secret [32]byte
	k := secret{1, 2, 3}
	k[31] = 9
	Key(&k)
	require.Equal(t, secret{}, k)
}
