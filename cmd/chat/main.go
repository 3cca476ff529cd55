package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"product-rec-agent/internal/bootstrap"
	"product-rec-agent/internal/config"
	"product-rec-agent/internal/dto"
	"product-rec-agent/internal/entity"
	"product-rec-agent/internal/pkg/logger"
	"product-rec-agent/internal/service"
	"product-rec-agent/pkg/turn"

	"github.com/fatih/color"
)

const helpText = `Commands:
  /new              start a new conversation
  /history [query]  list saved conversations
  /open <id>        continue a saved conversation
  /retry            resend the last failed message
  /quit             exit
  <number>          send the numbered follow-up suggestion`

type repl struct {
	chat        service.IChatService
	sessionId   string
	suggestions []string
}

func main() {
	cfg := config.Load()

	// Logs go to file only so they don't interleave with the conversation.
	container, err := bootstrap.NewContainer(cfg, bootstrap.Options{
		Logger: logger.NewIsolatedLogger(cfg.App.LogFilePath),
	})
	if err != nil {
		color.Red("Failed to start: %v", err)
		os.Exit(1)
	}
	defer container.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &repl{chat: container.ChatService}
	if err := r.newSession(ctx); err != nil {
		color.Red("Failed to open session: %v", err)
		os.Exit(1)
	}

	color.Cyan("Product recommendation assistant. Describe what you need, or /help.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		color.New(color.FgHiBlack).Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if quit := r.handle(ctx, line); quit {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Keep whatever the current conversation holds.
	_, _ = r.chat.NewSession(context.Background(), &dto.NewSessionRequest{PreviousSessionId: r.sessionId})
}

func (r *repl) handle(ctx context.Context, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(helpText)
	case "/new":
		if err := r.newSession(ctx); err != nil {
			color.Red("Error: %v", err)
			return false
		}
		color.Cyan("Started a new conversation.")
	case "/history":
		r.history(ctx, strings.TrimSpace(arg))
	case "/open":
		r.open(ctx, strings.TrimSpace(arg))
	case "/retry":
		res, err := r.chat.Retry(ctx, r.sessionId)
		if errors.Is(err, service.ErrNothingToRetry) {
			color.Yellow("Nothing to retry.")
			return false
		}
		r.render(res, err)
	default:
		text := line
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(r.suggestions) {
			text = r.suggestions[n-1]
			color.HiBlack("> %s", text)
		}
		res, err := r.chat.SendMessage(ctx, r.sessionId, &dto.SendMessageRequest{Text: text})
		r.render(res, err)
	}
	return false
}

func (r *repl) newSession(ctx context.Context) error {
	res, err := r.chat.NewSession(ctx, &dto.NewSessionRequest{PreviousSessionId: r.sessionId})
	if err != nil {
		return err
	}
	r.sessionId = res.Id
	r.suggestions = nil
	return nil
}

func (r *repl) history(ctx context.Context, query string) {
	sessions, err := r.chat.ListSessions(ctx, query, false)
	if err != nil {
		color.Red("Error: %v", err)
		return
	}
	if len(sessions) == 0 {
		color.Yellow("No saved conversations.")
		return
	}
	for _, s := range sessions {
		updated := time.UnixMilli(s.UpdatedAt).Format("2006-01-02 15:04")
		fmt.Printf("%s  %s  %s (%d recommendations)\n",
			color.HiBlackString(s.Id), updated, s.FirstMessagePreview, s.RecommendationCount)
	}
}

func (r *repl) open(ctx context.Context, id string) {
	if id == "" {
		color.Yellow("Usage: /open <id>")
		return
	}
	detail, err := r.chat.GetSession(ctx, id, false)
	if err != nil {
		color.Red("Error: %v", err)
		return
	}
	r.sessionId = detail.Id
	r.suggestions = nil
	for _, m := range detail.Messages {
		r.printMessage(m)
	}
}

func (r *repl) render(res *dto.TurnResponse, err error) {
	switch {
	case errors.Is(err, turn.ErrTurnInFlight):
		color.Yellow("Still waiting on the previous message.")
		return
	case errors.Is(err, turn.ErrEmptyInput):
		return
	case err != nil:
		color.Red("Error: %v", err)
		return
	}

	if res.State == string(turn.StateFailed) {
		if res.TakeoverHTML != "" {
			color.Red("The backend returned a page instead of an answer.")
		}
		color.Red("Error: %s", res.Error)
		color.Yellow("Type /retry to resend %q.", res.LastUserMessage)
		return
	}
	if res.Attempts > 1 {
		color.HiBlack("(answered after %d attempts)", res.Attempts)
	}
	if res.Reply != nil {
		r.printMessage(*res.Reply)
	}
}

func (r *repl) printMessage(m entity.ChatMessage) {
	if m.Role == entity.RoleUser {
		color.HiBlack("> %s", m.Content)
		return
	}

	fmt.Println(m.Content)
	for i, rec := range m.Recommendations {
		color.Green("%d. %s", i+1, rec.ProductName)
		if rec.Price != "" {
			fmt.Printf("   Price: %s\n", rec.Price)
		}
		if rec.Description != "" {
			fmt.Printf("   %s\n", rec.Description)
		}
		if rec.MatchReason != "" {
			fmt.Printf("   Why: %s\n", rec.MatchReason)
		}
		if rec.Promotion != "" {
			color.Magenta("   %s", rec.Promotion)
		}
		if tags := append(append([]string{}, rec.IndustryTags...), rec.UseCaseTags...); len(tags) > 0 {
			color.HiBlack("   [%s]", strings.Join(tags, ", "))
		}
	}

	r.suggestions = m.FollowUpSuggestions
	if len(r.suggestions) > 0 {
		color.Cyan("Suggestions:")
		for i, s := range r.suggestions {
			color.Cyan("  %d) %s", i+1, s)
		}
	}
}
