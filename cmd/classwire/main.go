package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"classwire/internal/app"
	"classwire/internal/config"
	"classwire/internal/logging"
	"classwire/pkg/interfaces"
	"classwire/pkg/types"
)

// staticIdentity satisfies the identity collaborator for the demo binary,
// where the user is fixed at startup by flag or environment.
type staticIdentity struct {
	userID int
}

func (s staticIdentity) CurrentUserID() int { return s.userID }

// consoleSink prints notifications to stdout the way a platform surface
// would toast them.
type consoleSink struct{}

func (consoleSink) Deliver(n *types.Notification) {
	fmt.Printf("[%s] %s\n  %s\n", n.DedupKey, n.Title, n.Body)
}

// consoleNavigator logs where a notification click would take the user.
type consoleNavigator struct{}

func (consoleNavigator) NavigateToClass(classID int) {
	fmt.Printf("navigate: class %d\n", classID)
}

// resolveUserID prefers the flag value, then the CLASSWIRE_USER_ID
// environment variable. Unparseable values fall back silently, matching the
// config package's env handling.
func resolveUserID(flagValue int) int {
	if flagValue != 0 {
		return flagValue
	}
	if v := os.Getenv("CLASSWIRE_USER_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "classwire: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	userID := flag.Int("user", 0, "user id to connect as (overrides CLASSWIRE_USER_ID)")
	flag.Parse()

	cfg := config.LoadWithPrecedence(*configPath)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	uid := resolveUserID(*userID)
	if uid <= 0 {
		return fmt.Errorf("a user id is required (-user flag or CLASSWIRE_USER_ID)")
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	client, err := app.NewClient(cfg, app.Deps{
		Identity:   staticIdentity{userID: uid},
		Sink:       consoleSink{},
		Navigator:  consoleNavigator{},
		Registerer: prometheus.DefaultRegisterer,
	}, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		return err
	}
	defer client.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down on signal: " + sig.String())
	return nil
}

var _ interfaces.Identity = staticIdentity{}
var _ interfaces.Sink = consoleSink{}
var _ interfaces.Navigator = consoleNavigator{}
