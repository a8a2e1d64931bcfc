package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyverse-de/go-mod/cfg"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/knadh/koanf"
)

var ServiceName = "compute-qms"

// Storage backend names.
const (
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

// Specification defines the configuration settings for the compute QMS service.
type Specification struct {
	DatabaseBackend     string
	DatabaseURI         string
	DatabasePath        string
	ReinitDB            bool
	RunSchemaMigrations bool
	HTTPPort            int

	NATSEnabled   bool
	NatsCluster   string
	MaxReconnects int
	ReconnectWait int
	CACertPath    string
	TLSKeyPath    string
	TLSCertPath   string
	CredsPath     string
	BaseSubject   string
	BaseQueueName string
	EventsSubject string

	DockerEnabled     bool
	DockerNetwork     string
	DockerLabelPrefix string

	SimulatedInfrastructure bool

	SchedulerEnabled  bool
	ReconcileInterval time.Duration
	RefillInterval    time.Duration
	PruneOwnership    bool

	DefaultPlan    string
	Plans          []model.Plan
	UsernameSuffix string
}

// LoadConfig loads the configuration for the compute QMS service.
func LoadConfig(envPrefix, configPath, dotEnvPath string) (*Specification, error) {
	k, err := cfg.Init(&cfg.Settings{
		EnvPrefix:   envPrefix,
		ConfigPath:  configPath,
		DotEnvPath:  dotEnvPath,
		StrictMerge: false,
		FileType:    cfg.YAML,
	})
	if err != nil {
		return nil, err
	}

	var s Specification

	s.DatabaseBackend = k.String("database.backend")
	if s.DatabaseBackend == "" {
		s.DatabaseBackend = BackendPostgres
	}
	switch s.DatabaseBackend {
	case BackendPostgres:
		s.DatabaseURI = k.String("database.uri")
		if s.DatabaseURI == "" {
			return nil, errors.New("database.uri or CQMS_DATABASE_URI must be set")
		}
	case BackendFile:
		s.DatabasePath = k.String("database.path")
		if s.DatabasePath == "" {
			return nil, errors.New("database.path must be set when the file backend is selected")
		}
	default:
		return nil, fmt.Errorf("unsupported database backend: %s", s.DatabaseBackend)
	}

	s.ReinitDB = k.Bool("reinit.db")
	s.RunSchemaMigrations = k.Bool("migrations.run") && s.DatabaseBackend == BackendPostgres

	s.HTTPPort = k.Int("http.port")
	if s.HTTPPort == 0 {
		s.HTTPPort = 9000
	}

	s.NATSEnabled = k.Bool("nats.enabled")
	if s.NATSEnabled {
		s.NatsCluster = k.String("nats.cluster")
		if s.NatsCluster == "" {
			return nil, errors.New("nats.cluster must be set in the configuration file")
		}
		s.CredsPath = k.String("nats.creds_path")
		s.CACertPath = k.String("nats.ca_cert_path")
		s.TLSCertPath = k.String("nats.tls_cert_path")
		s.TLSKeyPath = k.String("nats.tls_key_path")
		s.MaxReconnects = k.Int("nats.max_reconnects")
		if s.MaxReconnects == 0 {
			s.MaxReconnects = 10
		}
		s.ReconnectWait = k.Int("nats.reconnect_wait")
		if s.ReconnectWait == 0 {
			s.ReconnectWait = 1
		}
		s.BaseSubject = k.String("nats.base_subject")
		if s.BaseSubject == "" {
			s.BaseSubject = "cyverse.compute-qms.>"
		}
		s.BaseQueueName = k.String("nats.base_queue")
		if s.BaseQueueName == "" {
			s.BaseQueueName = "cyverse.compute-qms"
		}
		s.EventsSubject = k.String("nats.events_subject")
		if s.EventsSubject == "" {
			s.EventsSubject = "cyverse.compute-qms.events"
		}
	}

	s.DockerEnabled = k.Bool("docker.enabled")
	s.DockerNetwork = k.String("docker.network")
	s.DockerLabelPrefix = k.String("docker.label_prefix")
	if s.DockerLabelPrefix == "" {
		s.DockerLabelPrefix = "org.cyverse.compute-qms"
	}

	s.SimulatedInfrastructure = k.Bool("infrastructure.simulated")

	s.SchedulerEnabled = k.Bool("scheduler.enabled")
	s.ReconcileInterval = k.Duration("scheduler.reconcile_interval")
	if s.ReconcileInterval <= 0 {
		s.ReconcileInterval = 5 * time.Minute
	}
	s.RefillInterval = k.Duration("scheduler.refill_interval")
	if s.RefillInterval <= 0 {
		s.RefillInterval = time.Hour
	}
	s.PruneOwnership = k.Bool("reconcile.prune_ownership")

	s.DefaultPlan = k.String("plans.default")
	if s.DefaultPlan == "" {
		s.DefaultPlan = model.PlanFree
	}
	if k.Exists("plans.catalog") {
		err = k.UnmarshalWithConf("plans.catalog", &s.Plans, koanf.UnmarshalConf{Tag: "json"})
		if err != nil {
			return nil, fmt.Errorf("unable to parse plans.catalog: %w", err)
		}
	}

	s.UsernameSuffix = k.String("username.suffix")

	return &s, nil
}
