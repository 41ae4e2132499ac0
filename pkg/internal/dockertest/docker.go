package dockertest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = fallback
	}
	return value
}

func GetDockerHost() string {
	return getEnv("DOCKERTEST_HOST", "localhost")
}

// pool returns a docker pool or skips the test when no daemon is reachable.
func pool(t *testing.T) *dockertest.Pool {
	t.Helper()

	p, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := p.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	return p
}

func StartupPostgreSQL(t *testing.T) *gorm.DB {
	t.Helper()

	require := require.New(t)
	pool := pool(t)

	resource, err := pool.Run("postgres", "14", []string{"POSTGRES_PASSWORD=postgres"})
	require.NoError(err, "status postgres")

	t.Cleanup(func() {
		err := pool.Purge(resource)
		require.NoError(err, "purge resource %s", resource)
	})

	var orm *gorm.DB
	// exponential backoff-retry, because the application in the container might not be ready to accept connections yet
	err = pool.Retry(func() error {
		orm, err = gorm.Open(postgres.Open(fmt.Sprintf("postgres://postgres:postgres@%s:%s/postgres", GetDockerHost(), resource.GetPort("5432/tcp"))), &gorm.Config{})
		if err != nil {
			return err
		}

		d, err := orm.DB()
		if err != nil {
			return err
		}

		return d.Ping()
	})
	require.NoError(err, "wait for postgres connection")

	tx := orm.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto";`)
	require.NoError(tx.Error, "enable pgcrypto")

	return orm
}

func StartupRedis(t *testing.T) *redis.Client {
	t.Helper()

	require := require.New(t)
	pool := pool(t)

	resource, err := pool.Run("redis", "7-alpine", nil)
	require.NoError(err, "status redis")

	t.Cleanup(func() {
		err := pool.Purge(resource)
		require.NoError(err, "purge resource %s", resource)
	})

	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", GetDockerHost(), resource.GetPort("6379/tcp")),
	})
	err = pool.Retry(func() error {
		return client.Ping(context.Background()).Err()
	})
	require.NoError(err, "wait for redis connection")
	t.Cleanup(func() { _ = client.Close() })

	return client
}
