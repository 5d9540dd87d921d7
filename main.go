package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailmirror/mailmirror/config"
	"github.com/mailmirror/mailmirror/interfaces"
	"github.com/mailmirror/mailmirror/internal/cron"
	"github.com/mailmirror/mailmirror/internal/database"
	"github.com/mailmirror/mailmirror/internal/logger"
	"github.com/mailmirror/mailmirror/internal/repository"
	"github.com/mailmirror/mailmirror/internal/tracing"
	"github.com/mailmirror/mailmirror/services/attachments"
	"github.com/mailmirror/mailmirror/services/events"
	"github.com/mailmirror/mailmirror/services/imap"
	"github.com/mailmirror/mailmirror/services/parser"
	"github.com/mailmirror/mailmirror/services/sync"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}

	db, err := database.NewConnection(&database.DatabaseConfig{
		DBName:          cfg.DatabaseConfig.DBName,
		Host:            cfg.DatabaseConfig.Host,
		Port:            cfg.DatabaseConfig.Port,
		User:            cfg.DatabaseConfig.User,
		Password:        cfg.DatabaseConfig.Password,
		MaxConn:         cfg.DatabaseConfig.MaxConn,
		MaxIdleConn:     cfg.DatabaseConfig.MaxIdleConn,
		ConnMaxLifetime: cfg.DatabaseConfig.ConnMaxLifetime,
		LogLevel:        cfg.DatabaseConfig.LogLevel,
		SSLMode:         cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		log.Fatalf("Database initialization failed: %v", err)
	}

	switch os.Args[1] {
	case "migrate":
		if err := repository.MigrateDB(db); err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		log.Println("Database migration completed successfully")

	case "sync":
		runOnce(cfg, db)

	case "daemon":
		runDaemon(cfg, db)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: mailmirror <command>")
	fmt.Println("Commands:")
	fmt.Println("  migrate   Run database migrations")
	fmt.Println("  sync      Run one sync cycle for all enabled accounts")
	fmt.Println("  daemon    Run scheduled sync in the foreground")
}

func initLogger(cfg *config.Config) logger.Logger {
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()
	return appLogger
}

func buildOrchestrator(cfg *config.Config, db *gorm.DB, appLogger logger.Logger) (*sync.Orchestrator, *repository.Repositories, error) {
	repos := repository.InitRepositories(db)

	storage, err := buildStorage(cfg)
	if err != nil {
		return nil, nil, err
	}
	materializer := attachments.NewMaterializer(storage, repos.EmailAttachmentRepository)

	collaborators := sync.Collaborators{}
	if cfg.AppConfig.RabbitMQURL != "" {
		notifier, err := events.NewRabbitMQPublisher(cfg.AppConfig.RabbitMQURL, appLogger, nil)
		if err != nil {
			appLogger.Warnf("Event publishing disabled: %v", err)
		} else {
			collaborators.Notifier = notifier
		}
	}

	orchestrator := sync.NewOrchestrator(
		imap.NewRepositoryClientFactory(repos.AccountRepository),
		parser.NewMessageParser(),
		repos.EmailRepository,
		repos.FolderRepository,
		repos.AccountRepository,
		materializer,
		collaborators,
		cfg.AppConfig.SyncBatchSize,
	)
	return orchestrator, repos, nil
}

func buildStorage(cfg *config.Config) (interfaces.AttachmentStorage, error) {
	switch cfg.AppConfig.StorageBackend {
	case "s3":
		return attachments.NewAWSStorage(
			cfg.S3StorageConfig.Region,
			cfg.S3StorageConfig.AccessKeyID,
			cfg.S3StorageConfig.AccessKeySecret,
			cfg.S3StorageConfig.Bucket,
		), nil
	case "r2":
		return attachments.NewR2Storage(
			cfg.R2StorageConfig.AccountID,
			cfg.R2StorageConfig.AccessKeyID,
			cfg.R2StorageConfig.AccessKeySecret,
			cfg.R2StorageConfig.Bucket,
		), nil
	default:
		return attachments.NewLocalStorage(cfg.AppConfig.AttachmentDir)
	}
}

func initTracing(cfg *config.Config, appLogger logger.Logger) func() {
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		appLogger.Warnf("Tracing disabled: %v", err)
		return func() {}
	}
	opentracing.SetGlobalTracer(tracer)
	return func() { closer.Close() }
}

func runOnce(cfg *config.Config, db *gorm.DB) {
	appLogger := initLogger(cfg)
	defer initTracing(cfg, appLogger)()

	orchestrator, repos, err := buildOrchestrator(cfg, db, appLogger)
	if err != nil {
		appLogger.Fatalf("Setup failed: %v", err)
	}

	ctx := context.Background()
	accounts, err := repos.AccountRepository.ListEnabled(ctx)
	if err != nil {
		appLogger.Fatalf("Failed to list accounts: %v", err)
	}
	if len(accounts) == 0 {
		appLogger.Warn("No enabled accounts configured")
		return
	}

	for _, account := range accounts {
		report := orchestrator.SyncAccount(ctx, account)
		if report.HasErrors() {
			appLogger.Warnf("Sync for %s finished with errors: %+v", account.EmailAddress, report.Folders)
			continue
		}
		appLogger.Infof("Synced %s: %d new messages", account.EmailAddress, report.TotalNew)
	}
}

func runDaemon(cfg *config.Config, db *gorm.DB) {
	appLogger := initLogger(cfg)
	defer initTracing(cfg, appLogger)()
	appLogger.Info("mailmirror daemon starting up")

	orchestrator, repos, err := buildOrchestrator(cfg, db, appLogger)
	if err != nil {
		appLogger.Fatalf("Setup failed: %v", err)
	}

	cronManager := cron.NewCronManager(appLogger, repos.AccountRepository, orchestrator)
	cronManager.StartCron()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cronManager.Stop()
	appLogger.Info("Shutdown complete")
}
