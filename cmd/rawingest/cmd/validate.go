package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"rawingest/internal/ingest"
	"rawingest/internal/models"
	"rawingest/internal/schema"
	"rawingest/internal/storage"
)

var errValidationFailed = errors.New("one or more documents failed validation")

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Validate documents offline and preview their object keys",
	Long: `Runs each document through decoding, schema validation and key derivation
without writing anything. Use "-" to read from stdin.`,
	Example: `  rawingest validate event.json
  cat event.json | rawingest validate -
  rawingest validate --base64 encoded.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().Bool("base64", false, "documents are base64-encoded")
	validateCmd.Flags().Bool("strict", false, "parse timestamps strictly (overrides ingest.strict_timestamps)")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	encoded, _ := cmd.Flags().GetBool("base64")
	strict, _ := cmd.Flags().GetBool("strict")

	validator, err := schema.Load(cfg.Schema.Path)
	if err != nil {
		return err
	}

	h, err := ingest.NewHandler(ingest.Config{
		Store:            storage.Discard,
		Validator:        validator,
		StrictTimestamps: strict || cfg.Ingest.StrictTimestamps,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := false
	for _, name := range args {
		body, err := readInput(cmd, name)
		if err != nil {
			return err
		}

		key, err := h.Check(models.NewEnvelope(string(body), encoded))
		if err != nil {
			failed = true
			fmt.Fprintf(out, "%s: %s: %v\n", name, ingest.KindOf(err), err)
			continue
		}
		fmt.Fprintf(out, "%s: ok %s\n", name, key.Key())
	}

	if failed {
		return errValidationFailed
	}
	return nil
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
