package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/agent"
	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/store"
)

var (
	chatSession    string
	chatSelfCritic bool
	chatRounds     int
	chatModel      string
	chatSource     string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive multi-query session",
	Long: `Open an interactive prompt bound to one session. Each line is sent
as a query and the agent's output streams back before the next prompt.

Type "exit" or press Ctrl-D to leave. The connection is reused across
queries, so follow-ups keep the agent's conversational context.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		registry := agent.NewRegistry(agentConfig(cfg))
		defer registry.Shutdown()

		// Prune stale sessions in the background while chatting.
		store.StartTTLWorker(ctx, repo, cfg.SessionTTL, registry.Release)

		session, err := resolveSession(ctx, repo, chatSession, "chat session", chatModel)
		if err != nil {
			return err
		}

		client := registry.Client(session.SessionID)
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("connect to backend: %w", err)
		}

		fmt.Println(headerStyle.Render("Biomni chat") + dimStyle.Render("  session "+session.SessionID))
		fmt.Println(dimStyle.Render(`type "exit" to leave`))

		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for {
			fmt.Print(headerStyle.Render("> "))
			if !scanner.Scan() {
				break
			}
			prompt := strings.TrimSpace(scanner.Text())
			if prompt == "" {
				continue
			}
			if prompt == "exit" || prompt == "quit" {
				break
			}

			req := buildRequest(cfg, prompt, chatSelfCritic, chatRounds, chatModel, chatSource)
			if err := streamTurn(ctx, client, req); err != nil {
				if errors.Is(err, context.Canceled) {
					break
				}
				fmt.Println(errorStyle.Render("query failed: ") + err.Error())
			}

			if err := repo.TouchSession(ctx, session.SessionID, time.Now()); err != nil {
				slog.Warn("failed to update session timestamp",
					"session_id", session.SessionID, "error", err)
			}
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		fmt.Println(dimStyle.Render("bye"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "Existing session ID to continue")
	chatCmd.Flags().BoolVar(&chatSelfCritic, "self-critic", false, "Enable self-critic mode")
	chatCmd.Flags().IntVar(&chatRounds, "rounds", 0, "Test-time scaling rounds (0 = backend default)")
	chatCmd.Flags().StringVar(&chatModel, "model", "", "Model override for this session")
	chatCmd.Flags().StringVar(&chatSource, "source", "", "Model source override for this session")
}
