package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/localbridge/localbridged/pkg/activity"
	"github.com/localbridge/localbridged/pkg/authbroker"
	"github.com/localbridge/localbridged/pkg/config"
	"github.com/localbridge/localbridged/pkg/credstore"
	"github.com/localbridge/localbridged/pkg/cryptostore"
	"github.com/localbridge/localbridged/pkg/handlers"
	"github.com/localbridge/localbridged/pkg/log"
	"github.com/localbridge/localbridged/pkg/manifest"
	"github.com/localbridge/localbridged/pkg/paths"
	"github.com/localbridge/localbridged/pkg/permission"
	"github.com/localbridge/localbridged/pkg/router"
	"github.com/localbridge/localbridged/pkg/transport"
)

func serveCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg.ApplyEnvOverrides()
			}
			return runDaemon(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file of path overrides (an already-set LOCALBRIDGE_* variable takes precedence)")

	return cmd
}

func runDaemon(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	socketPath, err := paths.SocketPath()
	if err != nil {
		return fmt.Errorf("resolving socket path: %w", err)
	}
	manifestDir, err := paths.ManifestDir()
	if err != nil {
		return fmt.Errorf("resolving manifest directory: %w", err)
	}
	credentialFile, err := paths.CredentialFile()
	if err != nil {
		return fmt.Errorf("resolving credential file: %w", err)
	}
	activityFile, err := paths.ActivityLogFile()
	if err != nil {
		return fmt.Errorf("resolving activity log file: %w", err)
	}

	machineID := machineIdentity()
	username := currentUsername()

	masterKey, err := cryptostore.DeriveMasterKey(machineID, username)
	if err != nil {
		return fmt.Errorf("deriving master key: %w", err)
	}
	defer masterKey.Close()

	store, err := credstore.Open(credentialFile, masterKey)
	if err != nil {
		return fmt.Errorf("opening credential store: %w", err)
	}

	watcher, err := manifest.NewWatcher(manifestDir)
	if err != nil {
		return fmt.Errorf("loading manifests: %w", err)
	}

	activityLog, err := activity.Open(activityFile)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer activityLog.Close()

	broker := authbroker.New(store, nil)
	permFacade := permission.NewWorkerFacade(permission.StubFacade{}, runtime.NumCPU())

	hreg := handlers.NewRegistry()
	hreg.Register("permissions", handlers.PermissionsNamespace{Facade: permFacade})
	hreg.Register("auth", handlers.AuthNamespace{Broker: broker})

	rt := router.New(watcher, hreg, broker, permFacade, activityLog, nil)
	server := transport.NewServer(socketPath, rt.Route)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return watcher.Run(gctx) })
	group.Go(func() error { broker.RunBackgroundRefresh(gctx); return nil })
	group.Go(func() error { return server.Serve(gctx) })

	log.Logf("- localbridged listening on %s", socketPath)
	return group.Wait()
}

func machineIdentity() string {
	if v := os.Getenv("LOCALBRIDGE_MACHINE_ID"); v != "" {
		return v
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "localbridge-unknown-machine"
}

func currentUsername() string {
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if v := os.Getenv("USERNAME"); v != "" {
		return v
	}
	return "localbridge-unknown-user"
}
