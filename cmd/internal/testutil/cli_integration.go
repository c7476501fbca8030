//go:build integration

// Package testutil runs the command binaries against containerized dependencies.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/go-sql-driver/mysql"
)

const (
	mysqlImage        = "mysql:8.0.36"
	mysqlDatabase     = "outbox"
	mysqlUser         = "root"
	mysqlPassword     = "secret"
	mysqlAlias        = "mysql"
	rabbitImage       = "rabbitmq:3.13-alpine"
	rabbitAlias       = "rabbitmq"
	cliContainerImage = "alpine:3.20"
	cliContainerPath  = "/cli"
	cliExitTimeout    = 2 * time.Minute
	startupTimeout    = 2 * time.Minute
)

// Network is a docker network shared by the dependencies and the CLI container.
type Network struct {
	Name string
}

// MySQLContainer is a running MySQL reachable from the host through DB and from
// the network through DSN.
type MySQLContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
	DSN       string
}

// RabbitMQContainer is a running broker reachable from the host through HostURL and
// from the network through URL.
type RabbitMQContainer struct {
	Container testcontainers.Container
	HostURL   string
	URL       string
}

// StartNetwork creates a network removed at test cleanup.
func StartNetwork(t *testing.T, ctx context.Context) Network {
	t.Helper()

	net, err := network.New(ctx)
	if err != nil {
		t.Skipf("create network: %v", err)
	}
	t.Cleanup(func() {
		_ = net.Remove(ctx)
	})

	return Network{Name: net.Name}
}

// StartMySQLContainer starts MySQL on net.
func StartMySQLContainer(t *testing.T, ctx context.Context, net Network) MySQLContainer {
	t.Helper()

	port := nat.Port("3306/tcp")
	dsn := func(host, port string) string {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", mysqlUser, mysqlPassword, host, port, mysqlDatabase)
	}
	req := testcontainers.ContainerRequest{
		Image:        mysqlImage,
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"MYSQL_ROOT_PASSWORD": mysqlPassword,
			"MYSQL_DATABASE":      mysqlDatabase,
		},
		Networks:       []string{net.Name},
		NetworkAliases: map[string][]string{net.Name: {mysqlAlias}},
		WaitingFor: wait.ForSQL(port, "mysql", func(host string, port nat.Port) string {
			return dsn(host, port.Port())
		}).WithStartupTimeout(startupTimeout),
	}

	container := startContainer(t, ctx, req, "mysql")
	host, mapped := endpoint(t, ctx, container, port)

	db, err := sql.Open("mysql", dsn(host, mapped))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	return MySQLContainer{
		Container: container,
		DB:        db,
		DSN:       dsn(mysqlAlias, port.Port()),
	}
}

// StartRabbitMQContainer starts RabbitMQ on net.
func StartRabbitMQContainer(t *testing.T, ctx context.Context, net Network) RabbitMQContainer {
	t.Helper()

	port := nat.Port("5672/tcp")
	req := testcontainers.ContainerRequest{
		Image:          rabbitImage,
		ExposedPorts:   []string{string(port)},
		Networks:       []string{net.Name},
		NetworkAliases: map[string][]string{net.Name: {rabbitAlias}},
		WaitingFor:     wait.ForLog("Server startup complete").WithStartupTimeout(startupTimeout),
	}

	container := startContainer(t, ctx, req, "rabbitmq")
	host, mapped := endpoint(t, ctx, container, port)

	return RabbitMQContainer{
		Container: container,
		HostURL:   fmt.Sprintf("amqp://guest:guest@%s:%s/", host, mapped),
		URL:       fmt.Sprintf("amqp://guest:guest@%s:%s/", rabbitAlias, port.Port()),
	}
}

// BuildBinary builds pkg for linux and returns the binary path.
func BuildBinary(t *testing.T, pkg string) string {
	t.Helper()

	name := filepath.Base(pkg)
	if name == "." {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("resolve working dir: %v", err)
		}
		name = filepath.Base(wd)
	}
	bin := filepath.Join(t.TempDir(), name)
	// sqlite needs cgo, so link statically to run on musl images.
	cmd := exec.Command("go", "build",
		"-tags", "osusergo,netgo,sqlite_omit_load_extension",
		"-ldflags", `-extldflags "-static"`,
		"-o", bin, pkg)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		"GOOS=linux",
		"GOARCH="+runtime.GOARCH,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build %s: %v\n%s", pkg, err, string(out))
	}

	return bin
}

// RunCLIContainer runs binaryPath with args on net and returns its exit code and output.
func RunCLIContainer(t *testing.T, ctx context.Context, net Network, binaryPath string, args []string) (int, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:      cliContainerImage,
		Entrypoint: []string{cliContainerPath},
		Cmd:        args,
		Networks:   []string{net.Name},
		Files: []testcontainers.ContainerFile{
			{
				HostFilePath:      binaryPath,
				ContainerFilePath: cliContainerPath,
				FileMode:          0o755,
			},
		},
		WaitingFor: wait.ForExit().WithExitTimeout(cliExitTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start cli container: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	logsReader, err := container.Logs(ctx)
	if err != nil {
		t.Fatalf("read cli logs: %v", err)
	}
	defer logsReader.Close()

	logs, err := io.ReadAll(logsReader)
	if err != nil {
		t.Fatalf("read cli logs: %v", err)
	}

	state, err := container.State(ctx)
	if err != nil {
		t.Fatalf("read cli state: %v", err)
	}

	return state.ExitCode, string(logs)
}

func startContainer(
	t *testing.T,
	ctx context.Context,
	req testcontainers.ContainerRequest,
	name string,
) testcontainers.Container {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start %s container: %v", name, err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	return container
}

func endpoint(t *testing.T, ctx context.Context, container testcontainers.Container, port nat.Port) (string, string) {
	t.Helper()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolve host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("resolve port: %v", err)
	}

	return host, mapped.Port()
}
