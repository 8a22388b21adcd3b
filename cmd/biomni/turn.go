package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/agent"
	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/config"
	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/domain"
	"github.com/NaqibAhmad/Biomni-frontend-sub000/internal/store"
)

// errTurnFailed signals a turn that ended without completion.
var errTurnFailed = errors.New("query turn failed")

// resolveSession returns the session record for sessionID, or creates
// a fresh one titled after the prompt when no ID was given.
func resolveSession(ctx context.Context, repo store.Repository, sessionID, prompt, model string) (*domain.Session, error) {
	if sessionID != "" {
		session, err := repo.GetSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("look up session %s: %w", sessionID, err)
		}
		return session, nil
	}

	session := &domain.Session{
		SessionID:  uuid.NewString(),
		Title:      sessionTitle(prompt),
		Model:      model,
		CreatedAt:  time.Now(),
		LastUsedAt: time.Now(),
	}
	if err := repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func sessionTitle(prompt string) string {
	title := strings.TrimSpace(prompt)
	if title == "" {
		return "untitled"
	}
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	if len(title) > 60 {
		title = title[:57] + "..."
	}
	return title
}

// streamTurn sends one query and prints incremental output until the
// turn settles. It returns errTurnFailed when the stream ends without
// a completion.
func streamTurn(ctx context.Context, client *agent.Client, req agent.QueryRequest) error {
	events := client.Events()

	if err := client.Send(ctx, req); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			client.CancelTurn()
			return ctx.Err()
		case ev := <-events:
			if done, err := renderEvent(ev); done {
				return err
			}
		}
	}
}

// renderEvent prints one event and reports whether the turn settled.
func renderEvent(ev domain.Event) (bool, error) {
	switch ev.Kind {
	case domain.EventLog:
		if ev.Step > 0 {
			fmt.Println(stepStyle.Render(fmt.Sprintf("[step %d]", ev.Step)))
		}
		fmt.Println(ev.Payload)
		return false, nil

	case domain.EventCompletion:
		fmt.Println()
		if ev.IsSolution {
			fmt.Println(solutionStyle.Render("Solution"))
		} else {
			fmt.Println(headerStyle.Render("Final output"))
		}
		fmt.Println(ev.Payload)
		return true, nil

	case domain.EventError:
		switch ev.Code {
		case domain.CodeParseError:
			fmt.Println(dimStyle.Render("skipping malformed frame: " + ev.Payload))
			return false, nil
		case domain.CodeConnectionError, domain.CodeAbnormalClosure:
			fmt.Println(dimStyle.Render("connection interrupted, retrying: " + ev.Payload))
			return false, nil
		default:
			fmt.Println(errorStyle.Render("turn failed: ") + ev.Payload)
			return true, fmt.Errorf("%w: %s", errTurnFailed, ev.Payload)
		}

	case domain.EventState:
		if verbose {
			fmt.Println(dimStyle.Render("connection " + ev.State))
		}
		return false, nil
	}
	return false, nil
}

func buildRequest(cfg *config.Config, prompt string, selfCritic bool, rounds int, model, source string) agent.QueryRequest {
	if model == "" {
		model = cfg.Model
	}
	if source == "" {
		source = cfg.Source
	}
	return agent.QueryRequest{
		Prompt:             prompt,
		SelfCritic:         selfCritic,
		TestTimeScaleRound: rounds,
		Model:              model,
		Source:             source,
	}
}
