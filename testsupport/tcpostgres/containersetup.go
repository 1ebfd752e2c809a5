package tcpostgres

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:17"
	readyMessage  = "database system is ready to accept connections"
)

type (
	// RawCacheContainer is a postgres instance for the raw cache tests.
	// The container is reused between test runs.
	RawCacheContainer struct {
		testcontainers.Container
		port     nat.Port
		user     string
		password string
		dbName   string
	}
	ContainerOption func(c *containerConfig)
	containerConfig struct {
		name     string
		user     string
		password string
		dbName   string
		startup  time.Duration
	}
)

func WithName(name string) ContainerOption {
	return func(c *containerConfig) {
		c.name = name
	}
}

func WithCredentials(user, password, dbName string) ContainerOption {
	return func(c *containerConfig) {
		c.user, c.password, c.dbName = user, password, dbName
	}
}

func WithStartupTimeout(d time.Duration) ContainerOption {
	return func(c *containerConfig) {
		c.startup = d
	}
}

// StartRawCacheContainer starts (or reuses) the postgres container
//
//nolint:whitespace // can't make both editor and linter happy
func StartRawCacheContainer(
	ctx context.Context, opts ...ContainerOption,
) (*RawCacheContainer, error) {
	cfg := &containerConfig{
		name:     "f1replay-service-test",
		user:     "postgres",
		password: "password",
		dbName:   "postgres",
		startup:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	port, err := nat.NewPort("tcp", "5432")
	if err != nil {
		return nil, err
	}
	req := testcontainers.ContainerRequest{
		Image: postgresImage,
		Name:  cfg.name,
		Env: map[string]string{
			"POSTGRES_USER":     cfg.user,
			"POSTGRES_PASSWORD": cfg.password,
			"POSTGRES_DB":       cfg.dbName,
		},
		ExposedPorts: []string{port.Port()},
		// durability is not needed for tests
		Cmd: []string{"postgres", "-c", "fsync=off"},
		// postgres restarts once after the init scripts
		WaitingFor: wait.ForLog(readyMessage).
			WithOccurrence(2).
			WithStartupTimeout(cfg.startup),
	}
	container, err := testcontainers.GenericContainer(ctx,
		testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
			Reuse:            true,
		})
	if err != nil {
		return nil, err
	}
	return &RawCacheContainer{
		Container: container,
		port:      port,
		user:      cfg.user,
		password:  cfg.password,
		dbName:    cfg.dbName,
	}, nil
}

// URL returns the connection url of the mapped port
func (c *RawCacheContainer) URL(ctx context.Context) (string, error) {
	mapped, err := c.MappedPort(ctx, c.port)
	if err != nil {
		return "", err
	}
	host, err := c.Host(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s",
		c.user, c.password, host, mapped.Port(), c.dbName), nil
}
