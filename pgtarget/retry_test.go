// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package pgtarget

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobiletoly/go-objsync/objsync"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
		{
			"wrapped in sync error",
			&objsync.SyncError{Err: objsync.RuntimeError("flush", fmt.Errorf("batch: %w", &pgconn.PgError{Code: "40001"}))},
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestSleepWithContext(t *testing.T) {
	require.NoError(t, sleepWithContext(context.Background(), 0))
	require.NoError(t, sleepWithContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepWithContext(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRunner_RequiresPoolAndService(t *testing.T) {
	_, err := NewRunner(nil, nil, RunnerConfig{}, nil)
	require.Error(t, err)
	assert.True(t, objsync.IsConfigurationError(err))
}

func TestSinks_RejectForeignSession(t *testing.T) {
	err := Sinks{}.Enqueue(context.Background(), foreignSession{}, objsync.IndexNotification{})
	assert.True(t, objsync.IsConfigurationError(err))
}

type foreignSession struct{}

func (foreignSession) Flush(context.Context) error { return nil }
func (foreignSession) SetChangeTracking(bool)      {}
func (foreignSession) ChangeTracking() bool        { return true }
