package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm/logger"

	"github.com/jkrishnan-dev/textjobs/internal/config"
	"github.com/jkrishnan-dev/textjobs/internal/job"
	"github.com/jkrishnan-dev/textjobs/internal/pool"
)

// startPostgres spins up a throwaway postgres container and returns its port.
// Skipped unless INTEGRATION is set so the unit suite stays docker-free.
func startPostgres(t *testing.T) string {
	t.Helper()

	if os.Getenv("INTEGRATION") == "" {
		t.Skip("set INTEGRATION=1 to run docker-backed tests")
	}

	dockerPool, err := dockertest.NewPool("")
	require.NoError(t, err, "construct dockertest pool")
	dockerPool.MaxWait = 60 * time.Second
	require.NoError(t, dockerPool.Client.Ping(), "docker daemon unreachable")

	pg, err := dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "17-alpine",
		Env: []string{
			"POSTGRES_USER=testuser",
			"POSTGRES_PASSWORD=testpass",
			"POSTGRES_DB=textjobs",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := dockerPool.Purge(pg); err != nil {
			t.Logf("purge postgres container: %v", err)
		}
	})

	port := pg.GetPort("5432/tcp")
	dsn := fmt.Sprintf(
		"host=localhost user=testuser password=testpass dbname=textjobs port=%s sslmode=disable",
		port,
	)

	require.NoError(t, dockerPool.Retry(func() error {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}), "postgres never became ready")

	return port
}

func TestPostgres_MigrateAndJobLifecycle(t *testing.T) {
	port := startPostgres(t)

	cfg := &Config{
		Driver:         DriverPostgres,
		User:           "testuser",
		Password:       "testpass",
		Host:           "localhost",
		Port:           port,
		Database:       "textjobs",
		ConnectRetries: 5,
		RetryDelay:     200 * time.Millisecond,
		LogLevel:       logger.Silent,
	}

	ctx := context.Background()

	db, err := ConnectDB(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, Migrate(db, cfg.Driver))

	p, err := pool.New(db, 3)
	require.NoError(t, err)
	defer p.Close()

	repo := NewJobRepository(p)

	// Full happy path against a real postgres: create, claim, process, done.
	j, err := repo.Create(ctx, "hello world")
	require.NoError(t, err)

	epoch, err := repo.ClaimLease(ctx, j.ID, "w-1", 15*time.Second)
	require.NoError(t, err)
	require.Positive(t, epoch)

	require.NoError(t, repo.UpdateStatus(ctx, j.ID, config.StatusProcessing, nil, epoch))
	require.NoError(t, repo.UpdateStatus(ctx, j.ID, config.StatusDone, datatypes.JSON("11"), epoch))
	require.NoError(t, repo.ClearLease(ctx, j.ID, epoch))

	saved, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, string(config.StatusDone), saved.Status)
	assert.Equal(t, "11", string(saved.Result))
	assert.Nil(t, saved.Owner)
	assert.Nil(t, saved.LeaseUntil)
	assert.Zero(t, saved.LeaseEpoch)

	// Fencing holds on postgres too: the consumed epoch no longer writes.
	assert.ErrorIs(t, repo.ExtendLease(ctx, j.ID, time.Second, epoch), job.ErrLeaseLost)
}
