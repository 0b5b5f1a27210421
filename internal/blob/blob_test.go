package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"veritas/pkg/platform/sentinel"
)

func TestUploadAndFetchRoundTrip(t *testing.T) {
	up := NewMemoryUploader()
	ctx := context.Background()

	payload := []byte(`{"provider":"acme","session":"s-1"}`)
	ref, err := up.Upload(ctx, "attestations/s-1", payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), ref.Size)
	require.Equal(t, Digest(payload), ref.Digest)

	got, err := up.Fetch(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestFetchDetectsTampering(t *testing.T) {
	up := NewMemoryUploader()
	ctx := context.Background()

	ref, err := up.Upload(ctx, "k", []byte("original"))
	require.NoError(t, err)

	// Overwrite the stored bytes behind the ref's back.
	_, err = up.Upload(ctx, "k", []byte("tampered"))
	require.NoError(t, err)

	_, err = up.Fetch(ctx, ref)
	require.Error(t, err)
}

func TestFetchUnknownKey(t *testing.T) {
	up := NewMemoryUploader()

	_, err := up.Fetch(context.Background(), Ref{Key: "missing"})
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestUploadRequiresKey(t *testing.T) {
	up := NewMemoryUploader()

	_, err := up.Upload(context.Background(), "", []byte("x"))
	require.Error(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	up := NewMemoryUploader()
	ctx := context.Background()

	ref, err := up.Upload(ctx, "k", []byte("x"))
	require.NoError(t, err)
	require.NoError(t, up.Delete(ctx, "k"))
	require.NoError(t, up.Delete(ctx, "k"))

	_, err = up.Fetch(ctx, ref)
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}
