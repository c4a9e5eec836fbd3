package main

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/cryoetdb/cryoetdb/pkg/logging"
)

func TestWatchFile(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dir := t.TempDir()
	path := filepath.Join(dir, "labels.csv")
	require.NoError(t, os.WriteFile(path, []byte("tomo_name,x,y,z\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	ran := make(chan struct{}, 8)
	done := make(chan error, 1)
	go func() {
		done <- watchFile(ctx, path, logging.Discard(), func(context.Context) error {
			runs.Add(1)
			ran <- struct{}{}
			return nil
		})
	}()

	waitRun := func() {
		t.Helper()
		select {
		case <-ran:
		case <-time.After(5 * time.Second):
			t.Fatal("ingestion did not run")
		}
	}

	waitRun()
	assert.Equal(t, int32(1), runs.Load())

	// unrelated files in the same directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.csv"), []byte("x"), 0o644))

	require.NoError(t, os.WriteFile(path, []byte("tomo_name,x,y,z\nA,1,2,3\n"), 0o644))
	waitRun()
	assert.Equal(t, int32(2), runs.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchFile_FirstRunError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.csv")
	err := watchFile(context.Background(), path, logging.Discard(), func(context.Context) error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}
