package memory

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssign(t *testing.T) {
	var s string
	require.NoError(t, assign(&s, "value"))
	assert.Equal(t, "value", s)

	var b []byte
	require.NoError(t, assign(&b, []byte("raw")))
	assert.Equal(t, []byte("raw"), b)

	var n int64
	require.NoError(t, assign(&n, 42))
	assert.Equal(t, int64(42), n)

	var ns sql.NullString
	require.NoError(t, assign(&ns, nil))
	assert.False(t, ns.Valid)

	s = "stale"
	require.NoError(t, assign(&s, nil))
	assert.Empty(t, s)

	require.ErrorIs(t, assign(&s, 7), ErrScan)
	require.ErrorIs(t, assign(s, "x"), ErrScan)
}

func TestCloneValue(t *testing.T) {
	src := []byte("abc")
	cloned := cloneValue(src).([]byte)
	cloned[0] = 'X'

	assert.Equal(t, []byte("abc"), src)
	assert.Equal(t, "text", cloneValue("text"))
	assert.Nil(t, cloneValue(nil))
}
