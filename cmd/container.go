// cmd/container.go
//
// Root composition root. Owns infrastructure (DB, Redis, Kafka, SES) and composes
// bounded-context containers. This is the only place that knows about ALL modules.
package main

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/nexus-iam/pkg/config"
	"github.com/Abraxas-365/nexus-iam/pkg/eventx"
	"github.com/Abraxas-365/nexus-iam/pkg/eventx/eventxkafka"
	"github.com/Abraxas-365/nexus-iam/pkg/eventx/eventxlog"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/iamcontainer"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
	"github.com/Abraxas-365/nexus-iam/pkg/notifx"
	"github.com/Abraxas-365/nexus-iam/pkg/notifx/notifxses"
)

// Container holds shared infrastructure and composed module containers.
type Container struct {
	Config *config.Config

	// Infrastructure (shared across all modules)
	DB     *sqlx.DB
	Redis  *redis.Client
	Events eventx.Publisher
	Mail   notifx.Sender
	kafka  *eventxkafka.Publisher

	stopWorkers context.CancelFunc

	// Bounded-context containers
	IAM *iamcontainer.Container
}

func NewContainer(cfg *config.Config) *Container {
	logx.Info("🔧 Initializing application container...")

	c := &Container{Config: cfg}

	c.initInfrastructure()
	c.initModules()

	logx.Info("✅ Application container initialized")
	return c
}

// ---------------------------------------------------------------------------
// Infrastructure — DB, Redis, event bus
// ---------------------------------------------------------------------------

func (c *Container) initInfrastructure() {
	logx.Info("🏗️ Initializing infrastructure...")

	if c.Config.Server.StoreMode == "postgres" {
		// 1. Database
		db, err := sqlx.Connect("postgres", c.Config.Database.DSN())
		if err != nil {
			logx.Fatalf("Failed to connect to database: %v", err)
		}
		db.SetMaxOpenConns(c.Config.Database.MaxOpenConns)
		db.SetMaxIdleConns(c.Config.Database.MaxIdleConns)
		db.SetConnMaxLifetime(c.Config.Database.ConnMaxLife)
		c.DB = db
		logx.Info("  ✅ Database connected")

		// 2. Redis
		c.Redis = redis.NewClient(&redis.Options{
			Addr:     c.Config.Redis.Addr,
			Password: c.Config.Redis.Password,
			DB:       c.Config.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := c.Redis.Ping(ctx).Result(); err != nil {
			logx.Fatalf("Failed to connect to Redis: %v (Redis is required)", err)
		}
		logx.Info("  ✅ Redis connected")
	} else {
		logx.Warn("  ⚠️  STORE_MODE=memory: state is lost on restart")
	}

	// 3. Event bus
	if len(c.Config.Kafka.Brokers) > 0 {
		p, err := eventxkafka.NewPublisher(c.Config.Kafka.Brokers, c.Config.Kafka.Topic)
		if err != nil {
			logx.Fatalf("Failed to configure Kafka publisher: %v", err)
		}
		c.kafka = p
		c.Events = p
		logx.Infof("  ✅ Kafka event publisher configured (topic: %s)", c.Config.Kafka.Topic)
	} else {
		c.Events = eventxlog.NewPublisher()
		logx.Info("  ✅ Domain events written to the log")
	}

	// 4. Email provider for security alerts
	if c.Config.Alerts.Enabled && c.Config.Alerts.Provider == "ses" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var opts []func(*awsconfig.LoadOptions) error
		if c.Config.Alerts.SESRegion != "" {
			opts = append(opts, awsconfig.WithRegion(c.Config.Alerts.SESRegion))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			logx.Fatalf("Failed to load AWS config: %v", err)
		}
		c.Mail = notifxses.NewSender(ses.NewFromConfig(awsCfg), c.Config.Alerts.SESConfigSet)
		logx.Infof("  ✅ SES email provider configured (region: %s)", awsCfg.Region)
	}

	logx.Info("✅ Infrastructure initialized")
}

// ---------------------------------------------------------------------------
// Module composition — each bounded context wires itself
// ---------------------------------------------------------------------------

func (c *Container) initModules() {
	logx.Info("📦 Initializing modules...")

	c.IAM = iamcontainer.New(iamcontainer.Deps{
		DB:     c.DB,
		Redis:  c.Redis,
		Cfg:    c.Config,
		Events: c.Events,
		Mail:   c.Mail,
	})
	c.IAM.IdentityHandlers.SecureCookies = c.Config.Server.SecureCookies

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.IAM.Migrate(ctx); err != nil {
		logx.Fatalf("Failed to migrate IAM schema: %v", err)
	}

	workerCtx, stop := context.WithCancel(context.Background())
	c.stopWorkers = stop
	c.IAM.StartWorkers(workerCtx)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (c *Container) Cleanup() {
	logx.Info("🧹 Cleaning up resources...")

	if c.stopWorkers != nil {
		c.stopWorkers()
	}

	if c.kafka != nil {
		if err := c.kafka.Close(); err != nil {
			logx.Errorf("Error closing Kafka writer: %v", err)
		} else {
			logx.Info("  ✅ Kafka writer closed")
		}
	}

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			logx.Errorf("Error closing database: %v", err)
		} else {
			logx.Info("  ✅ Database connection closed")
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logx.Errorf("Error closing Redis: %v", err)
		} else {
			logx.Info("  ✅ Redis connection closed")
		}
	}

	logx.Info("✅ Cleanup complete")
}
