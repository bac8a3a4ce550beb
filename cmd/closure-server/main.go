// Package main provides the closure backend service entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yourorg/fire-closure/internal/version"
	"github.com/yourorg/fire-closure/pkg/api"
	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/catalog"
	"github.com/yourorg/fire-closure/pkg/config"
	"github.com/yourorg/fire-closure/pkg/db"
	"github.com/yourorg/fire-closure/pkg/formfill"
	"github.com/yourorg/fire-closure/pkg/record"
	"github.com/yourorg/fire-closure/pkg/template"
)

var (
	cfgFile string
	envFile string
	rootCmd = &cobra.Command{
		Use:   "closure-server",
		Short: "Fire incident closure backend",
		Long:  `Backend service for closure records, closure form templates and catalogs.`,
	}
)

var (
	configUsed  string
	seedTenant  string
	tokenTenant string
	tokenUser   string
	tokenAdmin  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the environment (default is ./.env)")

	seedCmd.Flags().StringVar(&seedTenant, "tenant", "", "tenant to seed")
	_ = seedCmd.MarkFlagRequired("tenant")

	tokenCmd.Flags().StringVar(&tokenTenant, "tenant", "", "tenant of the token")
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user ID of the token")
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "issue an administrator token")
	_ = tokenCmd.MarkFlagRequired("tenant")
	_ = tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the closure backend server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrations()
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the empty catalogs of a tenant with default items",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context(), seedTenant)
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenExpiry)
		token, err := jwtManager.GenerateUserToken(tokenTenant, tokenUser, tokenAdmin, nil, 0)
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetInfo().String("closure-server"))
	},
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.ServerConfig, error) {
	loader := config.NewServerLoader()
	if cfgFile != "" {
		loader.SetConfigPath(cfgFile)
	}
	if envFile != "" {
		loader.SetEnvFile(envFile)
	}

	cfg, err := loader.LoadServer()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.NewValidator().ValidateServer(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	configUsed = loader.GetConfigPath()
	return cfg, nil
}

func openDatabase(cfg *config.ServerConfig, logger *zap.Logger) (*db.Connection, error) {
	conn, err := db.NewConnection(&db.Config{
		Driver:             cfg.Database.Driver,
		Host:               cfg.Database.Host,
		Port:               cfg.Database.Port,
		Username:           cfg.Database.User,
		Password:           cfg.Database.Password,
		Database:           cfg.Database.Name,
		Path:               cfg.Database.Path,
		MaxConnections:     cfg.Database.MaxOpenConns,
		MaxIdleConnections: cfg.Database.MaxIdleConns,
		ConnectionLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:           cfg.Database.LogLevel,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := conn.AutoMigrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return conn, nil
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := createLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting closure server",
		zap.String("version", version.Version),
		zap.String("config", configUsed))

	database, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenExpiry)
	policy, err := auth.NewPolicy(logger)
	if err != nil {
		return fmt.Errorf("failed to build permission policy: %w", err)
	}

	var metrics *api.Metrics
	if cfg.Metrics.Enabled {
		metrics = api.NewMetrics()
	}

	gdb := database.DB()
	authMiddleware := auth.NewMiddleware(jwtManager, policy, logger)
	templateManager := template.NewManager(gdb, logger)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverConfig.Debug = cfg.Server.Debug
	serverConfig.TrustedProxies = cfg.Server.TrustedProxies

	server := api.NewServer(serverConfig, &api.Dependencies{
		DB:              database,
		Logger:          logger,
		Auth:            authMiddleware,
		Metrics:         metrics,
		TemplateManager: templateManager,
		RecordManager:   record.NewManager(gdb, authMiddleware.Policy(), logger),
		CatalogManager:  catalog.NewManager(gdb, logger),
		FormFillManager: formfill.NewManager(gdb, templateManager, authMiddleware.Policy(), logger),
	})

	// Handle shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()

		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown server", zap.Error(err))
		}
	}()

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		return nil
	}
}

func runMigrations() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := createLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	database, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	logger.Info("database migrations applied")
	return nil
}

func runSeed(ctx context.Context, tenantID string) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return fmt.Errorf("tenant is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := createLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	database, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	created, err := catalog.NewManager(database.DB(), logger).Seed(ctx, tenantID)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d catalog items for tenant %s\n", created, tenantID)
	return nil
}

func createLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()

	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		var zapLevel zapcore.Level
		if err := zapLevel.UnmarshalText([]byte(cfg.Level)); err == nil {
			zapConfig.Level.SetLevel(zapLevel)
		}
	}

	return zapConfig.Build()
}
