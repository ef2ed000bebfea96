package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/theroutercompany/docsync/internal/extract"
	"github.com/theroutercompany/docsync/internal/funcsite"
)

func newValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate configuration, then print it with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg.Redacted()); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to a docsync YAML configuration file")
	return cmd
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [diff-file]",
		Short: "Print the changed functions found in a unified git diff (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			patches, err := funcsite.ReadUnified(in)
			if err != nil {
				return err
			}
			changes := funcsite.Scan(patches).Freeze()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(changes.Files())
		},
	}
}

func newExtractCmd() *cobra.Command {
	var showShapes bool
	cmd := &cobra.Command{
		Use:   "extract <source-file> <function>...",
		Short: "Print the source text docsync would send for the named functions",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			names := args[1:]
			out := cmd.OutOrStdout()

			if showShapes {
				for _, s := range extract.Snippets(string(source), names) {
					fmt.Fprintf(out, "%s\t%s\n", s.Name, s.Shape)
				}
				return nil
			}

			text := extract.Extract(string(source), names)
			if text == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "no functions matched")
				return nil
			}
			_, err = io.WriteString(out, text+"\n")
			return err
		},
	}
	cmd.Flags().BoolVar(&showShapes, "shapes", false, "List matched names with the declaration shape instead of source")
	return cmd
}
