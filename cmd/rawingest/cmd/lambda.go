package cmd

import (
	"github.com/spf13/cobra"

	"rawingest/internal/app"
	"rawingest/internal/lambdafn"
	"rawingest/internal/logger"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run under the AWS Lambda runtime",
	Long: `Registers the ingest handler with the Lambda runtime. The function expects
API Gateway proxy events and needs RAW_BUCKET set.`,
	Args: cobra.NoArgs,
	RunE: runLambda,
}

func init() {
	rootCmd.AddCommand(lambdaCmd)
}

func runLambda(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := app.New(cmd.Context(), cfg, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			l := logger.WithError(err)
			l.Error().Msg("close error")
		}
	}()

	lambdafn.Start(a.Handler)
	return nil
}
