package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"nutrilabel/internal/config"
	applog "nutrilabel/internal/log"
	"nutrilabel/internal/vlm"
)

type extractor interface {
	Extract(ctx context.Context, imageURL string) (vlm.Output, error)
}

var newExtractor = func(ctx context.Context) (extractor, io.Closer, error) {
	cfg, err := config.LoadVLM()
	if err != nil {
		return nil, nil, err
	}
	return vlm.NewClientFromConfig(ctx, cfg)
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "labelctl",
		Short: "Inspect and run the nutrition label extractor",
		Long: `labelctl works with the same prompt, schema and parser as the API server.
Model settings are read from the environment (VLM_PROVIDER, LLM_API_KEY, ...).`,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return applog.SetLevel(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "minimum log level (debug, info, warn, error)")

	root.AddCommand(
		newSchemaCmd(),
		newParseCmd(),
		newExtractCmd(),
		newNamesCmd(),
	)
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
