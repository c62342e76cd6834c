// Package cli implements the flowctl commands.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/petrijr/flows/pkg/loader"
	"github.com/petrijr/flows/pkg/scp"
	"github.com/petrijr/flows/pkg/step"
)

const (
	exitFileNotFound = 2
	exitValidation   = 3
)

// ExitError is an error that carries a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewRootCmd creates the flowctl command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:          "flowctl",
		Short:        "Inspect shared-context pipeline definitions",
		SilenceUsage: true,
		Version:      version,
	}
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	root.SetVersionTemplate(fmt.Sprintf("flowctl version %s\n", version))

	root.AddCommand(NewValidateCmd())
	root.AddCommand(NewGraphCmd())
	return root
}

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a pipeline definition and its node graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPlaceholder(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d nodes)\n", p.Name(), len(p.Flow().IDs()))
			return nil
		},
	}
}

// NewGraphCmd creates the "graph" subcommand.
func NewGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <file>",
		Short: "Print every possible transition of a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE:  runGraph,
	}
	cmd.Flags().String("format", "text", "Output format: text | json")
	return cmd
}

func runGraph(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	p, err := buildPlaceholder(cmd, args[0])
	if err != nil {
		return err
	}
	edges := p.Flow().Edges()
	out := cmd.OutOrStdout()

	switch format {
	case "json":
		type edge struct {
			From string `json:"from"`
			To   string `json:"to"`
		}
		doc := struct {
			Name  string `json:"name"`
			Start string `json:"start"`
			Edges []edge `json:"edges"`
		}{Name: p.Name(), Start: p.Flow().Start(), Edges: make([]edge, 0, len(edges))}
		for _, e := range edges {
			doc.Edges = append(doc.Edges, edge{From: e.From, To: e.To})
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "text":
		fmt.Fprintf(out, "start: %s\n", p.Flow().Start())
		for _, e := range edges {
			fmt.Fprintf(out, "%s -> %s\n", e.From, e.To)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// buildPlaceholder loads path and builds it with pass-through step bodies.
func buildPlaceholder(cmd *cobra.Command, path string) (*scp.Pipeline, error) {
	logger := newLogger(cmd)

	def, err := loader.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, exitError(exitFileNotFound, "file not found: %s", path)
		}
		return nil, exitError(exitValidation, "%s: %v", path, err)
	}
	logger.Debug("definition_loaded",
		slog.String("path", path),
		slog.String("name", def.Name),
		slog.Int("steps", len(def.Steps)),
		slog.Int("tracks", len(def.Tracks)),
	)

	p, err := def.Build(step.WithSource(def.Placeholders()))
	if err != nil {
		return nil, exitError(exitValidation, "%s: %v", path, err)
	}
	logger.Debug("pipeline_built", slog.String("name", p.Name()), slog.Int("nodes", len(p.Flow().IDs())))
	return p, nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
