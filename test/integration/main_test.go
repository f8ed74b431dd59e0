package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/SNU-SE/analysisq/internal/storage/postgres"
	_ "github.com/lib/pq"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	pgPort    string
	redisAddr string
)

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("Could not construct pool: %s", err)
	}

	pool.MaxWait = 60 * time.Second

	if err := pool.Client.Ping(); err != nil {
		log.Fatalf("Could not connect to Docker: %s", err)
	}

	pg, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "17-alpine",
		Env: []string{
			"POSTGRES_USER=testuser",
			"POSTGRES_PASSWORD=testpass",
			"POSTGRES_DB=analysisq_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start postgres container: %s", err)
	}

	rd, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "redis",
		Tag:        "7-alpine",
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("Could not start redis container: %s", err)
	}

	pgPort = pg.GetPort("5432/tcp")
	redisAddr = "localhost:" + rd.GetPort("6379/tcp")

	pgDSN := fmt.Sprintf(
		"host=localhost user=testuser password=testpass dbname=analysisq_test port=%s sslmode=disable TimeZone=UTC",
		pgPort,
	)

	if err := pool.Retry(func() error {
		probe, err := sql.Open("postgres", pgDSN)
		if err != nil {
			return err
		}
		defer probe.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return probe.PingContext(ctx)
	}); err != nil {
		log.Fatalf("Could not connect to postgres: %s", err)
	}

	if err := pool.Retry(func() error {
		client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
		defer client.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}); err != nil {
		log.Fatalf("Could not connect to redis: %s", err)
	}

	os.Setenv("POSTGRES_USER", "testuser")
	os.Setenv("POSTGRES_PASSWORD", "testpass")
	os.Setenv("POSTGRES_DB", "analysisq_test")
	os.Setenv("POSTGRES_HOST", "localhost")
	os.Setenv("POSTGRES_PORT", pgPort)
	os.Setenv("DB_MAX_RETRIES", "3")
	os.Setenv("DB_RETRY_DELAY", "100ms")
	os.Setenv("DB_LOG_LEVEL", "silent")

	if err := migrate(); err != nil {
		log.Fatalf("Could not run migrations: %s", err)
	}

	code := m.Run()

	if err := pool.Purge(pg); err != nil {
		log.Fatalf("Could not purge postgres container: %s", err)
	}
	if err := pool.Purge(rd); err != nil {
		log.Fatalf("Could not purge redis container: %s", err)
	}

	os.Exit(code)
}

// migrate applies the embedded goose migrations through the same code
// path the api binary uses at startup.
func migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.ConnectDB(ctx, testDBConfig(), nil)
	if err != nil {
		return err
	}
	defer closeTestDB(db)

	return postgres.RunMigrations(db)
}

func testDBConfig() *postgres.Config {
	return &postgres.Config{
		User:           "testuser",
		Password:       "testpass",
		Host:           "localhost",
		Port:           pgPort,
		Database:       "analysisq_test",
		ConnectTimeout: 5,
		MaxRetries:     3,
		RetryDelay:     100 * time.Millisecond,
		LogLevel:       logger.Silent,
	}
}

// setupTestDB returns a fresh DB connection with the jobs table emptied.
// Each test gets its own connection to avoid connection pool issues.
func setupTestDB(tb testing.TB) (*gorm.DB, context.Context) {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	tb.Cleanup(cancel)

	db, err := postgres.ConnectDB(ctx, testDBConfig(), nil)
	require.NoError(tb, err)

	require.NoError(tb, db.Exec("DELETE FROM analysis_jobs").Error)

	tb.Cleanup(func() {
		closeTestDB(db)
	})

	return db, ctx
}

func closeTestDB(db *gorm.DB) {
	if db == nil {
		return
	}
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}

// setupRedis returns a flushed client against the redis container.
func setupRedis(tb testing.TB) *goredis.Client {
	tb.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: redisAddr})
	require.NoError(tb, client.FlushDB(context.Background()).Err())

	tb.Cleanup(func() {
		client.Close()
	})
	return client
}
