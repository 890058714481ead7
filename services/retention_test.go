package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetentionService_RunOnce(t *testing.T) {
	store, err := NewImageStore(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save(context.Background(), smallImage())
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path(name), past, past))

	svc := NewRetentionService(store, nil, time.Hour, time.Minute)
	assert.Equal(t, 1, svc.RunOnce())
	assert.NoFileExists(t, store.Path(name))
	assert.Equal(t, 0, svc.RunOnce())
}

func TestRetentionService_StartSweepsImmediately(t *testing.T) {
	store, err := NewImageStore(t.TempDir())
	require.NoError(t, err)

	name, err := store.Save(context.Background(), smallImage())
	require.NoError(t, err)
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path(name), past, past))

	svc := NewRetentionService(store, nil, time.Hour, time.Hour)
	require.NoError(t, svc.Start())
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(store.Path(name))
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)
}
