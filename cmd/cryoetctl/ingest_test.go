package main

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryoetdb/cryoetdb/pkg/config"
	"github.com/cryoetdb/cryoetdb/pkg/ingest"
	"github.com/cryoetdb/cryoetdb/pkg/logging"
)

func TestIngestOptionsFrom(t *testing.T) {
	newCmd := func(watch bool) *cobra.Command {
		cmd := &cobra.Command{Use: "ingest"}
		addIngestFlags(cmd, watch)
		return cmd
	}

	t.Run("configuration defaults", func(t *testing.T) {
		a := &app{cfg: config.Default()}
		opts, err := ingestOptionsFrom(newCmd(true), a)
		require.NoError(t, err)
		assert.Equal(t, ingest.PolicyAppend, opts.policy)
		assert.True(t, opts.migrate)
		assert.False(t, opts.watch)
		assert.Empty(t, opts.datasetID)
	})

	t.Run("flags override configuration", func(t *testing.T) {
		cfg := config.Default()
		cfg.DatasetID = "from-config"
		a := &app{cfg: cfg}

		cmd := newCmd(true)
		require.NoError(t, cmd.ParseFlags([]string{"--replace", "--dataset-id", "10301", "--no-migrate", "--watch"}))
		opts, err := ingestOptionsFrom(cmd, a)
		require.NoError(t, err)
		assert.Equal(t, ingest.PolicyReplace, opts.policy)
		assert.Equal(t, "10301", opts.datasetID)
		assert.False(t, opts.migrate)
		assert.True(t, opts.watch)
	})

	t.Run("run has no watch flag", func(t *testing.T) {
		a := &app{cfg: config.Default()}
		opts, err := ingestOptionsFrom(newCmd(false), a)
		require.NoError(t, err)
		assert.False(t, opts.watch)
	})

	t.Run("invalid configured policy", func(t *testing.T) {
		cfg := config.Default()
		cfg.IngestPolicy = "merge"
		_, err := ingestOptionsFrom(newCmd(true), &app{cfg: cfg})
		assert.Error(t, err)
	})
}

func TestRerunAfterFirst(t *testing.T) {
	t.Run("first failure is returned", func(t *testing.T) {
		calls := 0
		fn := rerunAfterFirst(func(context.Context) error {
			calls++
			return errors.New("connection refused")
		})

		assert.EqualError(t, fn(context.Background()), "connection refused")
		assert.NoError(t, fn(context.Background()))
		assert.NoError(t, fn(context.Background()))
		assert.Equal(t, 3, calls)
	})

	t.Run("later failures keep the watch alive", func(t *testing.T) {
		results := []error{nil, assert.AnError, nil}
		fn := rerunAfterFirst(func(context.Context) error {
			err := results[0]
			results = results[1:]
			return err
		})

		for range 3 {
			assert.NoError(t, fn(context.Background()))
		}
	})

	t.Run("watch fails on a broken starting state", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labels.csv")
		err := watchFile(context.Background(), path, logging.Discard(), rerunAfterFirst(func(context.Context) error {
			return assert.AnError
		}))
		assert.ErrorIs(t, err, assert.AnError)
	})
}
