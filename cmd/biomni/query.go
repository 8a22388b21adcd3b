package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/agent"
)

var (
	querySession    string
	querySelfCritic bool
	queryRounds     int
	queryModel      string
	querySource     string
)

var queryCmd = &cobra.Command{
	Use:   "query [prompt]",
	Short: "Run one streaming query against the agent",
	Long: `Send a single query and stream the agent's incremental output.

Without --session a new session is created and its ID printed, so the
conversation can be resumed later with --session or the chat command.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		repo, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer closeStore(repo)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		session, err := resolveSession(ctx, repo, querySession, prompt, queryModel)
		if err != nil {
			return err
		}
		if querySession == "" {
			fmt.Println(dimStyle.Render("session " + session.SessionID))
		}

		client := agent.NewClient(session.SessionID, agentConfig(cfg))
		defer client.Disconnect()

		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("connect to backend: %w", err)
		}

		req := buildRequest(cfg, prompt, querySelfCritic, queryRounds, queryModel, querySource)
		turnErr := streamTurn(ctx, client, req)

		if err := repo.TouchSession(ctx, session.SessionID, time.Now()); err != nil {
			slog.Warn("failed to update session timestamp",
				"session_id", session.SessionID, "error", err)
		}

		return turnErr
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&querySession, "session", "s", "", "Existing session ID to continue")
	queryCmd.Flags().BoolVar(&querySelfCritic, "self-critic", false, "Enable self-critic mode")
	queryCmd.Flags().IntVar(&queryRounds, "rounds", 0, "Test-time scaling rounds (0 = backend default)")
	queryCmd.Flags().StringVar(&queryModel, "model", "", "Model override for this query")
	queryCmd.Flags().StringVar(&querySource, "source", "", "Model source override for this query")
}
