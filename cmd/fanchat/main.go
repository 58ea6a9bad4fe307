package main

// Chat with the fan assistant from a terminal:
//   go run ./cmd/fanchat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"

	"knowyourfan-backend/internal/bootstrap"
	"knowyourfan-backend/internal/chat"
	"knowyourfan-backend/internal/shared/config"
	"knowyourfan-backend/internal/shared/telemetry"
)

const answerTimeout = 60 * time.Second

func main() {
	cfg := config.Load()
	app, err := bootstrap.Build(cfg)
	if err != nil {
		color.Red("bootstrap failed: %v\n", err)
		os.Exit(1)
	}
	app.ChatService.Logger = telemetry.Nop{}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	color.Cyan("\nChat with the %s assistant (type 'exit' to quit)", chat.OrganizationName(cfg.Policy))
	if err := run(ctx, app.ChatService, bufio.NewScanner(os.Stdin), color.Output); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, svc *chat.Service, scanner *bufio.Scanner, out io.Writer) error {
	userPrompt := color.New(color.FgGreen)
	assistantPrompt := color.New(color.FgCyan)
	notice := color.New(color.FgYellow)
	failure := color.New(color.FgRed)

	for {
		userPrompt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		message := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(message, "exit") {
			return nil
		}
		if message == "" {
			continue
		}

		askCtx, cancel := context.WithTimeout(ctx, answerTimeout)
		answer, err := svc.Answer(askCtx, message)
		cancel()
		switch {
		case errors.Is(err, chat.ErrInvalidInput):
			notice.Fprintf(out, "Messages must be at most %d characters.\n", chat.MaxMessageRunes)
			continue
		case err != nil:
			failure.Fprintln(out, chat.UnavailableMessage)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		assistantPrompt.Fprint(out, "Assistant: ")
		fmt.Fprintln(out, answer)
	}
}
