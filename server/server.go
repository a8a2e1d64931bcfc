package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cyverse/compute-qms/config"
	"github.com/cyverse/compute-qms/internal/admission"
	"github.com/cyverse/compute-qms/internal/contracts"
	"github.com/cyverse/compute-qms/internal/controllers"
	"github.com/cyverse/compute-qms/internal/db"
	"github.com/cyverse/compute-qms/internal/entitlements"
	"github.com/cyverse/compute-qms/internal/events"
	"github.com/cyverse/compute-qms/internal/filestore"
	"github.com/cyverse/compute-qms/internal/infra"
	"github.com/cyverse/compute-qms/internal/infra/docker"
	"github.com/cyverse/compute-qms/internal/infra/memory"
	"github.com/cyverse/compute-qms/internal/keylock"
	"github.com/cyverse/compute-qms/internal/ledger"
	"github.com/cyverse/compute-qms/internal/metrics"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/internal/ownership"
	"github.com/cyverse/compute-qms/internal/plans"
	"github.com/cyverse/compute-qms/internal/provision"
	"github.com/cyverse/compute-qms/internal/reconcile"
	"github.com/cyverse/compute-qms/internal/requests"
	"github.com/cyverse/compute-qms/internal/store"
	"github.com/cyverse/compute-qms/internal/worker"
	"github.com/cyverse/compute-qms/logging"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "server"})

// shutdownTimeout is the time allowed for in-flight requests to finish when the service stops.
const shutdownTimeout = 15 * time.Second

func natsSubject(base string, fields ...string) string {
	trimmed := strings.TrimSuffix(
		strings.TrimSuffix(base, ".*"),
		".>",
	)
	addFields := strings.Join(fields, ".")
	return fmt.Sprintf("%s.%s", trimmed, addFields)
}

func natsQueue(qBase string, fields ...string) string {
	return fmt.Sprintf("%s.%s", qBase, strings.Join(fields, "."))
}

func queueSub(conn *nats.EncodedConn, spec *config.Specification, name string, handler nats.Handler) {
	var err error

	subject := natsSubject(spec.BaseSubject, name)
	queue := natsQueue(spec.BaseQueueName, name)

	if _, err = conn.QueueSubscribe(subject, queue, handler); err != nil {
		log.Fatal(err)
	}

	log.Infof("subscribed to %s on queue %s", subject, queue)
}

func InitNATS(spec *config.Specification) *nats.EncodedConn {
	nc, err := nats.Connect(
		spec.NatsCluster,
		nats.UserCredentials(spec.CredsPath),
		nats.RootCAs(spec.CACertPath),
		nats.ClientCert(spec.TLSCertPath, spec.TLSKeyPath),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(spec.MaxReconnects),
		nats.ReconnectWait(time.Duration(spec.ReconnectWait)*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Errorf("disconnected from nats: %s", err.Error())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Errorf("connection closed: %s", nc.LastError().Error())
		}),
	)
	if err != nil {
		log.Fatal(err)
	}

	log.Infof("configured servers: %s", strings.Join(nc.Servers(), " "))
	log.Infof("connected to NATS host: %s", nc.ConnectedServerName())

	conn, err := nats.NewEncodedConn(nc, "protojson")
	if err != nil {
		log.Fatal(err)
	}

	log.Infof("set up encoded connection to NATS")

	return conn
}

// OpenStore opens the storage backend selected in the configuration.
func OpenStore(spec *config.Specification) (store.Store, error) {
	switch spec.DatabaseBackend {
	case config.BackendFile:
		log.Infof("opening the file store at %s", spec.DatabasePath)
		return filestore.Open(spec.DatabasePath)

	case config.BackendPostgres:
		log.Info("establishing the database connection")
		_, gormdb, err := db.Init("postgres", spec.DatabaseURI)
		if err != nil {
			return nil, err
		}
		return db.NewGORMStore(gormdb), nil

	default:
		return nil, fmt.Errorf("unsupported database backend: %s", spec.DatabaseBackend)
	}
}

// NewCatalog builds the plan catalog from the configuration, falling back to the built-in plans.
func NewCatalog(spec *config.Specification) (*plans.Catalog, error) {
	catalog := spec.Plans
	if len(catalog) == 0 {
		catalog = plans.Defaults()
	}
	return plans.NewCatalog(catalog, spec.DefaultPlan)
}

// newInfrastructure builds the infrastructure registry. Containers are managed by Docker when it's enabled. When
// simulated infrastructure is enabled, every resource type without a real provider is kept in a volatile in-memory
// provider that reconciliation ignores. Resource types left without a provider can still be admitted and reported by
// external systems, but can't be provisioned here.
func newInfrastructure(spec *config.Specification) (*infra.Registry, error) {
	log := log.WithFields(logrus.Fields{"context": "infrastructure"})

	registry := infra.NewRegistry()

	var simulated *memory.Provider
	if spec.SimulatedInfrastructure {
		log.Warn("simulating infrastructure in memory; simulated resources are lost on restart")
		simulated = memory.NewVolatile()
		registry.Register(model.ResourceTypeVM, simulated)
	}

	if spec.DockerEnabled {
		provider, err := docker.New(docker.Config{
			Network:     spec.DockerNetwork,
			LabelPrefix: spec.DockerLabelPrefix,
			ManagedOnly: true,
		})
		if err != nil {
			return nil, err
		}
		log.Info("managing containers through docker")
		registry.Register(model.ResourceTypeContainer, provider)
	} else if simulated != nil {
		registry.Register(model.ResourceTypeContainer, simulated)
	}

	for _, kind := range []model.ResourceType{model.ResourceTypeVM, model.ResourceTypeContainer} {
		if !registry.Supports(kind) {
			log.Infof("no infrastructure provider for %s resources", kind)
		}
	}

	return registry, nil
}

// NewServer builds every component once and wires them into a controllers.Server. The router and NATS connection
// are left for the caller to fill in.
func NewServer(
	spec *config.Specification,
	db store.Store,
	catalog *plans.Catalog,
	registry *infra.Registry,
	sink events.Sink,
) *controllers.Server {
	m := metrics.New()

	ent := entitlements.New(db, catalog, keylock.New(), sink)
	adm := admission.New(ent, m)
	index := ownership.New(db, sink)
	tokens := ledger.New(db, ent, catalog, m, sink)

	reconciler := reconcile.New(ent, index, registry, m, sink)
	reconciler.PruneOwnership = spec.PruneOwnership

	return &controllers.Server{
		Service:        config.ServiceName,
		Title:          "CyVerse Compute Quota Management System",
		Version:        "1.0.0",
		UsernameSuffix: spec.UsernameSuffix,
		Catalog:        catalog,
		Entitlements:   ent,
		Admission:      adm,
		Ownership:      index,
		Ledger:         tokens,
		Contracts:      contracts.New(db, ent, tokens, m, sink),
		Requests:       requests.New(db, sink),
		Reconciler:     reconciler,
		Provisioner:    provision.New(adm, ent, index, registry, m, sink),
		Metrics:        m,
	}
}

// NewScheduler registers the periodic maintenance jobs.
func NewScheduler(spec *config.Specification, s *controllers.Server) (*worker.Scheduler, error) {
	scheduler := worker.New()

	jobs := []worker.Job{
		{
			Name:     "reconcile",
			Interval: spec.ReconcileInterval,
			Run: func(ctx context.Context) error {
				_, err := s.Reconciler.Reconcile(ctx)
				return err
			},
		},
		{
			Name:     "contract-sweep",
			Interval: spec.RefillInterval,
			Run: func(ctx context.Context) error {
				_, err := s.Contracts.Sweep(ctx)
				return err
			},
		},
		{
			Name:     "plan-expiry",
			Interval: spec.RefillInterval,
			Run: func(ctx context.Context) error {
				_, err := s.Ledger.ExpirePlans(ctx)
				return err
			},
		},
	}

	for _, job := range jobs {
		if err := scheduler.Add(job); err != nil {
			return nil, err
		}
	}

	return scheduler, nil
}

func Init(spec *config.Specification) {
	log := log.WithFields(logrus.Fields{"context": "server init"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := InitRouter()

	db, err := OpenStore(spec)
	if err != nil {
		log.Fatalf("service initialization failed: %s", err.Error())
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error(err)
		}
	}()

	catalog, err := NewCatalog(spec)
	if err != nil {
		log.Fatalf("service initialization failed: %s", err.Error())
	}

	registry, err := newInfrastructure(spec)
	if err != nil {
		log.Fatalf("service initialization failed: %s", err.Error())
	}

	// Audit events always go to the log, and to NATS when it's enabled.
	sinks := events.Multi{events.LogSink{}}
	var conn *nats.EncodedConn
	if spec.NATSEnabled {
		conn = InitNATS(spec)
		sinks = append(sinks, events.NewNATSSink(conn.Conn, spec.EventsSubject))
	}

	s := NewServer(spec, db, catalog, registry, sinks)
	s.Router = e
	s.NATSConn = conn

	// Register the handlers.
	RegisterHandlers(*s)

	if conn != nil {
		queueSub(conn, spec, "user.overages.get", s.GetUserOveragesNATS)
		queueSub(conn, spec, "user.overages.check", s.InOverageNATS)
		defer conn.Close()
	}

	if spec.SchedulerEnabled {
		scheduler, err := NewScheduler(spec, s)
		if err != nil {
			log.Fatalf("service initialization failed: %s", err.Error())
		}
		go func() {
			if err := scheduler.Run(ctx); err != nil {
				log.Errorf("the scheduler stopped: %s", err)
			}
		}()
	}

	log.Info("starting the service")
	go func() {
		err := e.Start(fmt.Sprintf(":%d", spec.HTTPPort))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = e.Shutdown(shutdownCtx); err != nil {
		log.Error(err)
	}
}
