package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_UploadOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/uploads/")
	require.NoError(t, err)
	ctx := context.Background()

	key, err := store.Upload(ctx, strings.NewReader("proof"), "payroll/proofs/slip-1/a.pdf", "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "payroll/proofs/slip-1/a.pdf", key)
	assert.Equal(t, "http://localhost:8080/uploads/payroll/proofs/slip-1/a.pdf", store.URL(key))

	rc, err := store.Open(ctx, key)
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "proof", string(content))

	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))

	_, err = store.Open(ctx, key)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestLocalStorage_Upload_StaysInsideBasePath(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir, "http://localhost/uploads")
	require.NoError(t, err)

	key, err := store.Upload(context.Background(), strings.NewReader("x"), "../../etc/passwd", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "etc/passwd", key)

	_, err = store.Upload(context.Background(), strings.NewReader("x"), "..", "text/plain")
	assert.Error(t, err)
}
