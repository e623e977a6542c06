package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nutrilabel/internal/nutrition"
	"nutrilabel/internal/vlm"
)

func newSchemaCmd() *cobra.Command {
	var (
		prompt  bool
		example bool
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the response schema sent to the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch {
			case prompt:
				fmt.Fprintln(cmd.OutOrStdout(), nutrition.Instruction())
				return nil
			case example:
				fmt.Fprintln(cmd.OutOrStdout(), nutrition.Example())
				return nil
			}
			return printJSON(cmd, nutrition.ResponseSchema())
		},
	}
	cmd.Flags().BoolVar(&prompt, "prompt", false, "print the extraction prompt instead")
	cmd.Flags().BoolVar(&example, "example", false, "print a zeroed example answer instead")
	cmd.MarkFlagsMutuallyExclusive("prompt", "example")
	return cmd
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file]",
		Short: "Normalise a saved model answer into a nutrition label",
		Long: `Reads a raw model answer from file, or stdin when the file is omitted or "-",
and prints the label the API would store for it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			label, err := nutrition.Parse(raw)
			if err != nil {
				return fmt.Errorf("parse failed: %w", err)
			}
			return printJSON(cmd, label)
		},
	}
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return string(data), nil
}

type extraction struct {
	Model         string          `json:"model"`
	Attempts      int             `json:"attempts"`
	LatencyMillis int64           `json:"latency_ms"`
	Usage         vlm.Usage       `json:"token_usage"`
	NutritionInfo nutrition.Label `json:"nutrition_info"`
}

func newExtractCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "extract [image-url]",
		Short: "Run one extraction against the configured model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			model, closer, err := newExtractor(cmd.Context())
			if err != nil {
				return fmt.Errorf("configure model: %w", err)
			}
			defer func() { _ = closer.Close() }()

			out, err := model.Extract(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}
			if raw {
				fmt.Fprintln(cmd.OutOrStdout(), out.Content)
				return nil
			}

			label, err := nutrition.Parse(out.Content)
			if err != nil {
				return fmt.Errorf("parse failed: %w", err)
			}
			return printJSON(cmd, extraction{
				Model:         out.Model,
				Attempts:      out.Attempts,
				LatencyMillis: out.Latency.Milliseconds(),
				Usage:         out.Usage,
				NutritionInfo: label,
			})
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the unparsed model answer")
	return cmd
}

func newNamesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "names [label-name...]",
		Short: "Resolve label wording to canonical nutrient names",
		Long:  `Without arguments, lists every canonical nutrient name.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, name := range nutrition.CanonicalNames() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			for _, arg := range args {
				name, ok := nutrition.CanonicalName(arg)
				if !ok {
					name = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", strings.TrimSpace(arg), name)
			}
			return nil
		},
	}
}
