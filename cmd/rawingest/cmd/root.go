package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rawingest/internal/config"
	"rawingest/internal/logger"
)

// lambdaRuntimeEnv is set by the Lambda runtime for every function process.
const lambdaRuntimeEnv = "AWS_LAMBDA_RUNTIME_API"

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "rawingest",
	Short: "Raw event ingestion endpoint",
	Long: `rawingest accepts one JSON document per request, validates it against a
JSON Schema and stores it gzip-compressed in object storage under
year=YYYY/month=MM/day=DD/service=<service>/<epoch_millis>.json.gz.

Run without arguments inside AWS Lambda it starts the Lambda runtime.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv(lambdaRuntimeEnv) != "" {
			return runLambda(cmd, args)
		}
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/rawingest/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}

	logger.Init(c.Logging.Level, c.Logging.Format)
	cfg = c
	return nil
}
