package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapnb/pkg/core"
	"github.com/leapstack-labs/leapnb/pkg/kernel"
	"github.com/leapstack-labs/leapnb/pkg/notebook"
	"github.com/spf13/cobra"
)

// ExecOptions holds options for the exec command.
type ExecOptions struct {
	Language string
	File     string
}

// NewExecCommand creates the exec command.
func NewExecCommand() *cobra.Command {
	opts := &ExecOptions{}

	cmd := &cobra.Command{
		Use:   "exec [code|-]",
		Short: "Execute a snippet of code on the kernel",
		Long: `Execute code without a notebook and stream the result.

Code is taken from the argument, from --file, or from stdin. Without
--language the language is guessed from the code: statements that start
with a SQL keyword run as sql, everything else as python.`,
		Example: `  leapnb exec 'print(1 + 1)'
  leapnb exec -l sql 'SELECT * FROM users'
  echo 'SELECT 42' | leapnb exec -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Language, "language", "l", "", "Language of the code (python|sql)")
	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "Read code from a file")
	_ = cmd.RegisterFlagCompletionFunc("language", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{string(core.LanguagePython), string(core.LanguageSQL)}, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runExec(cmd *cobra.Command, args []string, opts *ExecOptions) error {
	e := envFrom(cmd)

	code, err := readSource(cmd, args, opts.File)
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return &core.ValidationError{Field: "code", Message: "nothing to execute"}
	}

	lang := notebook.ClassifyLanguage(code)
	if opts.Language != "" {
		if lang, err = core.ParseLanguage(opts.Language); err != nil {
			return err
		}
	}

	t, err := e.cfg.NewTransport(e.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := kernel.Close(t); err != nil {
			e.logger.Warn("failed to close kernel", slog.String("error", err.Error()))
		}
	}()

	ctx := cmd.Context()
	if e.cfg.ExecTimeout > 0 {
		var cancel func()
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ExecTimeout)
		defer cancel()
	}

	req := core.ExecutionRequest{Code: code, Language: lang}
	var (
		mu     sync.Mutex
		chunks []core.Chunk
	)
	exec := kernel.Start(ctx, t, req, func(c core.Chunk) {
		mu.Lock()
		chunks = append(chunks, c)
		mu.Unlock()
		if !e.r.JSON() {
			e.r.Chunk(c)
		}
	})
	runErr := exec.Wait()

	mu.Lock()
	defer mu.Unlock()

	var inBand string
	for _, c := range chunks {
		if c.Type == core.ChunkError {
			inBand = c.Message
		}
	}

	if e.r.JSON() {
		res := struct {
			Language core.Language `json:"language"`
			Output   []core.Chunk  `json:"output"`
			Error    string        `json:"error,omitempty"`
		}{Language: lang, Output: chunks, Error: inBand}
		if chunks == nil {
			res.Output = []core.Chunk{}
		}
		if runErr != nil {
			res.Error = runErr.Error()
		}
		if err := e.r.WriteJSON(res); err != nil {
			return err
		}
	}

	if runErr != nil {
		return fmt.Errorf("execution failed: %w", runErr)
	}
	if inBand != "" {
		return &core.ExecutionError{Message: inBand}
	}
	return nil
}
