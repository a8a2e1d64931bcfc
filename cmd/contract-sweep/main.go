// Command contract-sweep credits every contract refill that is due, expires finished contracts and reverts lapsed
// plans. It's meant to be run from an external scheduler when the service's own scheduler is disabled.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyverse-de/go-mod/cfg"
	"github.com/cyverse/compute-qms/config"
	"github.com/cyverse/compute-qms/internal/contracts"
	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/keylock"
	"github.com/cyverse/compute-qms/internal/ledger"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/logging"
	"github.com/cyverse/compute-qms/server"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "contract-sweep"})

// sweep runs the contract sweep followed by plan expiry.
func sweep(ctx context.Context, spec *config.Specification) error {
	db, err := server.OpenStore(spec)
	if err != nil {
		return errors.Wrap(err, "unable to open the database")
	}
	defer db.Close()

	catalog, err := server.NewCatalog(spec)
	if err != nil {
		return errors.Wrap(err, "unable to load the plan catalog")
	}

	sink := events.LogSink{}
	m := metrics.New()
	ent := entitlements.New(db, catalog, keylock.New(), sink)
	tokens := ledger.New(db, ent, catalog, m, sink)
	manager := contracts.New(db, ent, tokens, m, sink)

	result, err := manager.Sweep(ctx)
	if err != nil {
		return errors.Wrap(err, "the contract sweep failed")
	}
	log.Infof(
		"credited %d refills totalling %d tokens; %d contracts expired",
		result.Refills, result.TokensCredited, result.Expired,
	)

	expired, err := tokens.ExpirePlans(ctx)
	if err != nil {
		return errors.Wrap(err, "plan expiry failed")
	}
	log.Infof("reverted %d lapsed plans", expired)

	return nil
}

func main() {
	var (
		configPath = flag.String("config", cfg.DefaultConfigPath, "Path to the config file")
		dotEnvPath = flag.String("dotenv-path", cfg.DefaultDotEnvPath, "Path to the dotenv file")
		envPrefix  = flag.String("env-prefix", "CQMS_", "The prefix for environment variables")
		logLevel   = flag.String("log-level", "info", "One of trace, debug, info, warn, error, fatal, or panic.")
	)

	flag.Parse()
	logging.SetupLogging(*logLevel)

	// Load the same configuration as the service so that both use the same database and plan catalog.
	spec, err := config.LoadConfig(*envPrefix, *configPath, *dotEnvPath)
	if err != nil {
		log.Fatalf("unable to load the configuration: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = sweep(ctx, spec); err != nil {
		log.Fatal(err)
	}
}
