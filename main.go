// Command compute-qms runs the compute quota management service. It enforces per-user VM and container quotas,
// keeps the token ledger and billing plans, credits contract refills and reconciles usage counters against the
// infrastructure.
package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/cyverse-de/go-mod/cfg"
	"github.com/cyverse-de/go-mod/otelutils"
	"github.com/cyverse/compute-qms/config"
	"github.com/cyverse/compute-qms/logging"
	"github.com/cyverse/compute-qms/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "main"})

// migrateQuotaSchema brings the quota, ledger, contract and ownership tables up to date. When reinit is set, every
// table is dropped first, which discards all balances and usage.
func migrateQuotaSchema(migrationsDir, dbURI string, reinit bool) error {
	log := log.WithFields(logrus.Fields{"context": "schema migrations"})

	wrapMsg := "unable to migrate the quota schema"

	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", dir), dbURI)
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	defer m.Close()

	if reinit {
		log.Warn("dropping the quota schema")
		err = m.Down()
		if err != nil && err != migrate.ErrNoChange {
			return errors.Wrap(err, wrapMsg)
		}
	}

	log.Infof("applying the migrations in %s", dir)
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, wrapMsg)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return errors.Wrap(err, wrapMsg)
	}
	log.Infof("quota schema is at version %d (dirty: %t)", version, dirty)

	return nil
}

func main() {
	var (
		configPath    = flag.String("config", cfg.DefaultConfigPath, "Path to the config file")
		dotEnvPath    = flag.String("dotenv-path", cfg.DefaultDotEnvPath, "Path to the dotenv file")
		envPrefix     = flag.String("env-prefix", "CQMS_", "The prefix for environment variables")
		migrationsDir = flag.String("migrations", "migrations", "Directory containing the schema migrations")
		logLevel      = flag.String("log-level", "debug", "One of trace, debug, info, warn, error, fatal, or panic.")
	)

	flag.Parse()
	logging.SetupLogging(*logLevel)

	log := log.WithFields(logrus.Fields{"context": "main"})

	// Traces cover the HTTP handlers, NATS handlers and database queries.
	tracerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdown := otelutils.TracerProviderFromEnv(tracerCtx, config.ServiceName, func(e error) { log.Fatal(e) })
	defer shutdown()

	spec, err := config.LoadConfig(*envPrefix, *configPath, *dotEnvPath)
	if err != nil {
		log.Fatalf("unable to load the configuration: %s", err.Error())
	}
	log.WithFields(logrus.Fields{
		"backend":   spec.DatabaseBackend,
		"simulated": spec.SimulatedInfrastructure,
		"docker":    spec.DockerEnabled,
		"scheduler": spec.SchedulerEnabled,
	}).Info("loaded the configuration")

	// Only the Postgres backend has a versioned schema.
	if spec.RunSchemaMigrations {
		if err = migrateQuotaSchema(*migrationsDir, spec.DatabaseURI, spec.ReinitDB); err != nil {
			log.Fatal(err.Error())
		}
	}

	server.Init(spec)
}
