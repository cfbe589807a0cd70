package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codeturn/core/internal/config"
	"github.com/codeturn/core/internal/journal"
	"github.com/codeturn/core/internal/logging"
	"github.com/codeturn/core/internal/ptysession"
	"github.com/codeturn/core/internal/ratelimit"
	"github.com/codeturn/core/internal/session"
	"github.com/codeturn/core/internal/summarize"
	"github.com/codeturn/core/internal/turn"
)

// main wires the turn controller into a thin, non-interactive exec-runner
// CLI. It is an illustrative driver, not the core: the real consumer of
// internal/turn is whatever frontend submits prompts and renders events.
func main() {
	var logLevel string
	var logFile string

	root := &cobra.Command{
		Use:   "coreshell",
		Short: "local-first coding-agent core: exec runner demo",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Init(logLevel, logFile)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "debug|info|warn|error")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "optional log file path")

	root.AddCommand(
		execCmd(),
		shellCmd(),
		turnCmd(),
		resumeCmd(),
		describeCmd(),
		initCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func userConfigDir() string {
	dir, err := config.GetUserConfigDir()
	if err != nil {
		return ".coreshell"
	}
	return dir
}

func loadConfig() *config.Config {
	cfg, err := config.Load(userConfigDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// execCmd runs a single shell command, waits up to --yield-ms for it to
// exit, and prints its rendered output, without any model involved — the
// headless half of the exec_command tool contract.
func execCmd() *cobra.Command {
	var yieldMs, maxTokens int64
	cmd := &cobra.Command{
		Use:   "exec -- <command...>",
		Short: "run one shell command through the PTY session manager",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := ptysession.NewManager()
			out, err := mgr.ExecCommand(cmd.Context(), ptysession.ExecParams{
				Cmd:             strings.Join(args, " "),
				YieldTimeMs:     uint64(yieldMs),
				MaxOutputTokens: uint64(maxTokens),
			})
			if err != nil {
				return fmt.Errorf("exec: %w", err)
			}
			fmt.Print(out.Render())
			if out.Ongoing {
				fmt.Fprintf(os.Stderr, "\n(session %d still running; use 'coreshell shell %d' to attach)\n", out.SessionID, out.SessionID)
			}
			for _, pc := range summarize.ParseCommand(args) {
				fmt.Fprintf(os.Stderr, "summary: %s %s\n", pc.Kind, pc.Cmd)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&yieldMs, "yield-ms", 10000, "time to wait before reporting an ongoing process")
	cmd.Flags().Int64Var(&maxTokens, "max-tokens", 10000, "output token budget before truncation")
	return cmd
}

// shellCmd attaches an interactive terminal to a running PTY session,
// putting the local terminal into raw mode and forwarding keystrokes
// through write_stdin — the demo CLI's only reason to depend on
// golang.org/x/term rather than leaving that dependency unwired.
func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <session-id>",
		Short: "attach to a running local_shell session and forward stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("shell: bad session id: %w", err)
			}

			mgr := ptysession.NewManager()
			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return fmt.Errorf("shell: stdin is not a terminal")
			}
			oldState, err := term.MakeRaw(fd)
			if err != nil {
				return fmt.Errorf("shell: make raw: %w", err)
			}
			defer term.Restore(fd, oldState)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			reader := bufio.NewReader(os.Stdin)
			buf := make([]byte, 1024)
			for {
				n, err := reader.Read(buf)
				if n > 0 {
					out, werr := mgr.WriteStdin(ctx, ptysession.WriteStdinParams{
						SessionID: sessionID,
						Chars:     string(buf[:n]),
					})
					if werr != nil {
						return fmt.Errorf("shell: write_stdin: %w", werr)
					}
					fmt.Print(out.Render())
					if !out.Ongoing {
						return nil
					}
				}
				if err != nil {
					return nil
				}
			}
		},
	}
}

// describeCmd summarizes a command the way a transcript renderer would,
// without running it.
func describeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "describe -- <command...>",
		Short: "summarize a shell command the way a transcript would",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, pc := range summarize.ParseCommand(args) {
				fmt.Printf("%s\t%s\n", pc.Kind, pc.Cmd)
			}
			return nil
		},
	}
}

// echoProvider is a stand-in turn.ModelProvider for this demo binary: it
// treats the user's prompt as already the final answer, so the turn
// controller's bookkeeping (journal shadowing, event emission, health
// caching) can be exercised without a real model backend, which is out
// of this module's scope.
type echoProvider struct{}

func (echoProvider) Chat(ctx context.Context, items []session.Item) (turn.Response, error) {
	var last string
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].Kind == session.KindUserMessage {
			last = items[i].Content
			break
		}
	}
	return turn.Response{Content: "echo: " + last, Finished: true}, nil
}

func (echoProvider) Health(ctx context.Context) error { return nil }

// turnCmd drives one turn of the conversation loop end to end: append the
// prompt, call the (stub) model, route any tool calls, and persist every
// item to a fresh rollout journal — a thin illustrative "exec runner"
// frontend, not a real model consumer.
func turnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "turn <prompt>",
		Short: "run one turn of the conversation loop against a stub model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			sess := session.New(args[0], ".")

			root := filepath.Join(userConfigDir(), "sessions")
			h, err := journal.Open(root, sess, logging.Log)
			if err != nil {
				return fmt.Errorf("turn: open journal: %w", err)
			}
			defer h.Shutdown()

			events := make(chan turn.Event, 32)
			go func() {
				for e := range events {
					fmt.Fprintf(os.Stderr, "[%s] %s\n", e.Kind, e.Content)
				}
			}()

			ctrl := &turn.Controller{
				Session:  sess,
				Journal:  h,
				Provider: echoProvider{},
				PtyMgr:   ptysession.NewManager(),
				Limiter:  ratelimit.New(cfg.RateLimit.ToRatelimitConfig()),
				Trusted:  cfg.TrustedCommands,
				Events:   events,
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := ctrl.RunTurn(ctx, args[0]); err != nil {
				close(events)
				return fmt.Errorf("turn: %w", err)
			}
			close(events)

			for _, item := range ctrl.Items() {
				if item.Kind == session.KindAssistantMessage {
					fmt.Println(item.Content)
				}
			}
			return nil
		},
	}
}

// resumeCmd replays a rollout file and prints its conversation items, the
// demo CLI's window into journal.Resume.
func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <rollout-path>",
		Short: "replay a rollout file's conversation items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resumed, err := journal.Resume(args[0], logging.Log)
			if err != nil {
				return fmt.Errorf("resume: %w", err)
			}
			defer resumed.Handle.Shutdown()
			for _, item := range resumed.Items {
				fmt.Printf("%s\t%s\n", item.Kind, item.Content)
			}
			return nil
		},
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "create ~/.coreshell and the project-local .coreshell directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			userDir := userConfigDir()
			projectDir, err := config.GetProjectDir()
			if err != nil {
				return err
			}
			if err := config.EnsureConfigDirs(userDir, projectDir); err != nil {
				return err
			}
			if _, err := config.Load(userDir); err != nil {
				return err
			}
			if err := config.Save(userDir, &config.Config{RateLimit: config.Default().RateLimit}); err != nil {
				return err
			}
			fmt.Println("initialized:", userDir)
			fmt.Println("  project:", filepath.Join(projectDir, ".coreshell"))
			return nil
		},
	}
}
