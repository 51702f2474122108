package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/canteen/internal/storage/postgres"
)

type fakeSchemaStore struct {
	calls  []string
	steps  int
	state  postgres.MigrationState
	upErr  error
	closed bool
}

func (s *fakeSchemaStore) MigrateUp(_ context.Context, steps int) error {
	s.calls = append(s.calls, "up")
	s.steps = steps
	return s.upErr
}

func (s *fakeSchemaStore) MigrateDown(_ context.Context, steps int) error {
	s.calls = append(s.calls, "down")
	s.steps = steps
	return nil
}

func (s *fakeSchemaStore) MigrationStatus(context.Context) (postgres.MigrationState, error) {
	s.calls = append(s.calls, "status")
	return s.state, nil
}

func (s *fakeSchemaStore) Close() error {
	s.closed = true
	return nil
}

func noEnv(string) (string, bool) { return "", false }

func openFake(store *fakeSchemaStore, gotDSN *string) openStoreFunc {
	return func(_ context.Context, dsn string) (schemaStore, error) {
		if gotDSN != nil {
			*gotDSN = dsn
		}
		return store, nil
	}
}

func TestRun_Directions(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantCalls []string
		wantSteps int
		wantOut   string
	}{
		{
			name:      "up applies all by default",
			args:      []string{"-dsn=postgres://x"},
			wantCalls: []string{"up", "status"},
			wantSteps: 0,
			wantOut:   "migrate up ok: version=6 applied=6 pending=0\n",
		},
		{
			name:      "down defaults to one step",
			args:      []string{"-direction=down", "-dsn=postgres://x"},
			wantCalls: []string{"down", "status"},
			wantSteps: 1,
			wantOut:   "migrate down ok: version=6 applied=6 pending=0\n",
		},
		{
			name:      "status only reads",
			args:      []string{"-direction= STATUS ", "-dsn=postgres://x"},
			wantCalls: []string{"status"},
			wantOut:   "migrate status ok: version=6 applied=6 pending=0\n",
		},
		{
			name:      "up with steps",
			args:      []string{"-direction=up", "-steps=2", "-dsn=postgres://x"},
			wantCalls: []string{"up", "status"},
			wantSteps: 2,
			wantOut:   "migrate up ok: version=6 applied=6 pending=0\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeSchemaStore{state: postgres.MigrationState{Version: 6, Applied: 6}}
			var out bytes.Buffer

			err := run(context.Background(), tt.args, noEnv, openFake(store, nil), &out)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, store.calls)
			assert.Equal(t, tt.wantSteps, store.steps)
			assert.Equal(t, tt.wantOut, out.String())
			assert.True(t, store.closed)
		})
	}
}

func TestRun_DSNFromEnvironment(t *testing.T) {
	store := &fakeSchemaStore{}
	var gotDSN string
	lookup := func(key string) (string, bool) {
		if key == envPostgresDSN {
			return " postgres://canteen@db/canteen ", true
		}
		return "", false
	}

	require.NoError(t, run(context.Background(), []string{"-direction=status"}, lookup, openFake(store, &gotDSN), &bytes.Buffer{}))
	assert.Equal(t, "postgres://canteen@db/canteen", gotDSN)
}

func TestRun_Errors(t *testing.T) {
	t.Run("missing dsn", func(t *testing.T) {
		err := run(context.Background(), nil, noEnv, openFake(&fakeSchemaStore{}, nil), &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), envPostgresDSN)
	})

	t.Run("unsupported direction", func(t *testing.T) {
		store := &fakeSchemaStore{}
		err := run(context.Background(), []string{"-direction=sideways", "-dsn=postgres://x"}, noEnv, openFake(store, nil), &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported direction")
		assert.Empty(t, store.calls)
	})

	t.Run("open failure", func(t *testing.T) {
		open := func(context.Context, string) (schemaStore, error) { return nil, errors.New("connection refused") }
		err := run(context.Background(), []string{"-dsn=postgres://x"}, noEnv, open, &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "open postgres store")
	})

	t.Run("migrate failure", func(t *testing.T) {
		store := &fakeSchemaStore{upErr: errors.New("syntax error")}
		err := run(context.Background(), []string{"-dsn=postgres://x"}, noEnv, openFake(store, nil), &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "migrate up failed")
		assert.True(t, store.closed)
	})

	t.Run("bad flag", func(t *testing.T) {
		err := run(context.Background(), []string{"-unknown"}, noEnv, openFake(&fakeSchemaStore{}, nil), &bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestRun_Postgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("CANTEEN_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("CANTEEN_POSTGRES_TEST_DSN is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var out bytes.Buffer
	if err := run(ctx, []string{"-direction=status", "-dsn=" + dsn}, noEnv, openPostgres, &out); err != nil {
		t.Skipf("postgres is not available: %v", err)
	}
	require.NoError(t, run(ctx, []string{"-direction=up", "-dsn=" + dsn}, noEnv, openPostgres, &out))
	assert.Contains(t, out.String(), "pending=0")
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	require.Error(t, err)
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}
