package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/domain"
)

var (
	sessionsNewTitle string
	sessionsNewModel string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage the local session registry",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known sessions",
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

		sessions, err := repo.ListSessions(context.Background())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		displaySessions(sessions)
		return nil
	},
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a session without querying",
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

		title := sessionsNewTitle
		if title == "" {
			title = "untitled"
		}
		session := &domain.Session{
			SessionID:  uuid.NewString(),
			Title:      title,
			Model:      sessionsNewModel,
			CreatedAt:  time.Now(),
			LastUsedAt: time.Now(),
		}
		if err := repo.CreateSession(context.Background(), session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		fmt.Println(session.SessionID)
		return nil
	},
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
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

		if err := repo.DeleteSession(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete session %s: %w", args[0], err)
		}
		fmt.Println(dimStyle.Render("deleted " + args[0]))
		return nil
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete sessions idle longer than the configured TTL",
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

		deleted, err := repo.CleanupExpiredSessions(context.Background(), cfg.SessionTTL)
		if err != nil {
			return fmt.Errorf("prune sessions: %w", err)
		}
		fmt.Printf("pruned %d session(s)\n", deleted)
		return nil
	},
}

func displaySessions(sessions []*domain.Session) {
	if len(sessions) == 0 {
		fmt.Println(headerStyle.Render("No sessions found"))
		return
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Found %d session(s)", len(sessions))))
	fmt.Println()

	w := tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(w, headerStyle.Render("ID")+"\t"+headerStyle.Render("Title")+"\t"+headerStyle.Render("Model")+"\t"+headerStyle.Render("Last used")+"\t")
	_, _ = fmt.Fprintln(w, strings.Repeat("-", 90))

	for _, session := range sessions {
		title := session.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}

		model := session.Model
		if model == "" {
			model = dimStyle.Render("default")
		}

		shortID := session.SessionID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			stepStyle.Render(shortID),
			title,
			model,
			dimStyle.Render(formatLastUsed(session.LastUsedAt)),
		)
	}
	_ = w.Flush()
}

func formatLastUsed(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsNewCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)
	sessionsCmd.AddCommand(sessionsPruneCmd)
	sessionsNewCmd.Flags().StringVar(&sessionsNewTitle, "title", "", "Session title")
	sessionsNewCmd.Flags().StringVar(&sessionsNewModel, "model", "", "Default model for the session")
}
