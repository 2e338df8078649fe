package ygggo_pool

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DockerTestHelper runs a throwaway MySQL container and exposes a Config
// pointing at it. Intended for integration tests; requires a Docker daemon.
type DockerTestHelper struct {
	container testcontainers.Container
	config    Config
}

// DockerTestConfig holds settings for the test container.
type DockerTestConfig struct {
	MySQLVersion string
	Database     string
	Username     string
	Password     string
	StartTimeout time.Duration
}

// DefaultDockerTestConfig returns the defaults used by the integration tests.
func DefaultDockerTestConfig() DockerTestConfig {
	return DockerTestConfig{
		MySQLVersion: "8.0",
		Database:     "testdb",
		Username:     "testuser",
		Password:     "testpass",
		StartTimeout: 60 * time.Second,
	}
}

// NewDockerTestHelper starts a MySQL container with the given settings.
func NewDockerTestHelper(ctx context.Context, cfg DockerTestConfig) (*DockerTestHelper, error) {
	container, err := tcmysql.Run(ctx,
		"mysql:"+cfg.MySQLVersion,
		tcmysql.WithDatabase(cfg.Database),
		tcmysql.WithUsername(cfg.Username),
		tcmysql.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("port: 3306  MySQL Community Server").
				WithOccurrence(1).
				WithStartupTimeout(cfg.StartTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start MySQL container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	mapped, err := container.MappedPort(ctx, "3306/tcp")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &DockerTestHelper{
		container: container,
		config: Config{
			Addresses: []Address{{Host: host, Port: port}},
			Username:  cfg.Username,
			Password:  cfg.Password,
			Database:  cfg.Database,
		},
	}, nil
}

// Config returns a pool configuration pointing at the container.
func (h *DockerTestHelper) Config() Config { return h.config }

// Close terminates the container.
func (h *DockerTestHelper) Close(ctx context.Context) error {
	if h.container == nil {
		return nil
	}
	return h.container.Terminate(ctx)
}
