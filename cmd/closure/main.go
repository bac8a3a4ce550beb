// Package main provides the closure CLI, a command-line front end for the
// closure record and closure form editors.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/fire-closure/internal/version"
	"github.com/yourorg/fire-closure/pkg/auth"
	"github.com/yourorg/fire-closure/pkg/backend"
	"github.com/yourorg/fire-closure/pkg/closure"
	"github.com/yourorg/fire-closure/pkg/config"
	"github.com/yourorg/fire-closure/pkg/report"
)

var (
	cfgFile string
	envFile string
	rootCmd = &cobra.Command{
		Use:           "closure",
		Short:         "Fire incident closure client",
		Long:          `Fill in closure records and closure forms of fire incidents.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.closure/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before the environment (default is ./.env)")

	rootCmd.AddCommand(formCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(catalogsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.GetInfo().String("closure"))
	},
}

var catalogsCmd = &cobra.Command{
	Use:   "catalogs",
	Short: "Inspect closure catalogs",
}

var catalogsListCmd = &cobra.Command{
	Use:   "list [catalog]",
	Short: "List the items of one catalog, or of every catalog",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.logger.Sync()
		return app.listCatalogs(cmd.Context(), args)
	},
}

var catalogsMappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Print the technique mapping resolved against the live catalog",
	Long: `Print the technique mapping resolved against the live catalog as a
techniques.mapping YAML block. Pasting it into the config file pins every
technique that is currently matched by name.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.logger.Sync()
		return app.printMapping(cmd.Context())
	},
}

func init() {
	catalogsCmd.AddCommand(catalogsListCmd)
	catalogsCmd.AddCommand(catalogsMappingCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app holds what every command needs
type app struct {
	cfg      *config.ClientConfig
	cfgPath  string
	logger   *zap.Logger
	client   *backend.Client
	session  *auth.TokenSession
	mapper   *closure.TechniqueMapper
	renderer *report.Renderer
}

func newApp() (*app, error) {
	loader := config.NewClientLoader()
	if cfgFile != "" {
		loader.SetConfigPath(cfgFile)
	}
	if envFile != "" {
		loader.SetEnvFile(envFile)
	}

	cfg, err := loader.LoadClient()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.NewValidator().ValidateClient(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Backend.Token == "" {
		return nil, fmt.Errorf("backend.token is required (set CLOSURE_BACKEND_TOKEN)")
	}

	logger, err := createLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	session, err := auth.NewTokenSession(cfg.Backend.Token)
	if err != nil {
		return nil, err
	}

	mapper, err := closure.NewTechniqueMapper(cfg.Techniques.Mapping, logger)
	if err != nil {
		return nil, err
	}

	renderer, err := report.NewRenderer()
	if err != nil {
		return nil, err
	}

	client := backend.NewClient(&backend.Config{
		BaseURL: cfg.Backend.URL,
		Token:   session.Token(),
		Timeout: cfg.Backend.Timeout,
	}, logger)

	return &app{
		cfg:      cfg,
		cfgPath:  loader.GetConfigPath(),
		logger:   logger,
		client:   client,
		session:  session,
		mapper:   mapper,
		renderer: renderer,
	}, nil
}

func (a *app) listCatalogs(ctx context.Context, args []string) error {
	if len(args) == 1 {
		name := args[0]
		if !closure.IsCatalog(name) {
			return fmt.Errorf("unknown catalog: %s", name)
		}
		page, err := a.client.ListCatalogoItems(ctx, name, 1, a.cfg.Catalogs.PageSize)
		if err != nil {
			return err
		}
		printCatalog(name, page.Items)
		return nil
	}

	cats, err := closure.LoadCatalogs(ctx, a.client, a.cfg.Catalogs.PageSize)
	if err != nil {
		return err
	}
	for _, name := range closure.CatalogNames {
		printCatalog(name, cats.Get(name))
	}
	return nil
}

// mappingDocument is the shape of the techniques section of the config file
type mappingDocument struct {
	Techniques struct {
		Mapping map[string]string `yaml:"mapping"`
	} `yaml:"techniques"`
}

func (a *app) printMapping(ctx context.Context) error {
	cats, err := closure.LoadCatalogs(ctx, a.client, a.cfg.Catalogs.PageSize)
	if err != nil {
		return err
	}
	for _, item := range a.mapper.Unmapped(cats.Tecnicas) {
		a.logger.Warn("technique matches no slug and is left out",
			zap.String("id", item.ID),
			zap.String("nombre", item.Nombre))
	}

	var doc mappingDocument
	doc.Techniques.Mapping = a.mapper.Snapshot(cats.Tecnicas)
	if a.cfgPath != "" {
		fmt.Printf("# merge into %s\n", a.cfgPath)
	}
	return writeYAML(doc)
}

func printCatalog(name string, items []closure.CatalogItem) {
	fmt.Printf("%s (%d)\n", name, len(items))
	for _, item := range items {
		fmt.Printf("  %s\t%s\n", item.ID, item.Nombre)
	}
}

// writeYAML prints v as a YAML document
func writeYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// createLogger builds a logger writing to stderr so stdout carries only
// command output
func createLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()

	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		var zapLevel zapcore.Level
		if err := zapLevel.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err == nil {
			zapConfig.Level.SetLevel(zapLevel)
		}
	}

	zapConfig.OutputPaths = []string{"stderr"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	return zapConfig.Build()
}
