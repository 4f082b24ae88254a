package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mathforge/internal/cache"
	"mathforge/internal/config"
	"mathforge/internal/display"
	"mathforge/internal/listener"
	"mathforge/internal/observe"
	"mathforge/internal/state"
)

const interactiveHelp = `Commands:
  gen <grade> <topic...>       generate material (uses current flag defaults)
  estimate <grade> <topic...>  token estimate without generating
  stats                        cache statistics
  clear                        clear the cache
  help                         this text
  exit                         quit`

func runInteractive(cfg *config.Config) error {
	mgr, store, err := buildStack(cfg)
	if err != nil {
		return err
	}

	if err := listener.Init(); err != nil {
		return fmt.Errorf("init terminal input: %w", err)
	}
	defer listener.Close()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Println("\nGoodbye!")
		os.Exit(0)
	}()

	listener.AsyncPrintln("mathforge interactive. Type 'help' for commands.")

	for {
		input := listener.GetInput()
		if input == "" {
			continue
		}
		cmd, rest, _ := strings.Cut(input, " ")

		switch strings.ToLower(cmd) {
		case "exit", "quit":
			fmt.Println("Goodbye!")
			return nil
		case "help":
			listener.AsyncPrintln(interactiveHelp)
		case "stats":
			listener.AsyncPrintln(display.FormatStats(store.Stats()))
		case "clear":
			listener.AsyncPrintln(fmt.Sprintf("Removed %d cache entries", store.Clear()))
		case "estimate":
			req, err := parseGenArgs(rest)
			if err != nil {
				listener.AsyncPrintln(err.Error())
				continue
			}
			listener.AsyncPrintln(display.FormatEstimate(cache.EstimateTokens(req)))
		case "gen":
			req, err := parseGenArgs(rest)
			if err != nil {
				listener.AsyncPrintln(err.Error())
				continue
			}
			runJob(mgr, req)
		default:
			listener.AsyncPrintln(fmt.Sprintf("Unknown command %q. Type 'help'.", cmd))
		}
	}
}

// parseGenArgs reads "<grade> <topic...>" and fills the rest of the
// request from the flag defaults.
func parseGenArgs(rest string) (state.Request, error) {
	grade, topic, ok := strings.Cut(strings.TrimSpace(rest), " ")
	if !ok || strings.TrimSpace(topic) == "" {
		return state.Request{}, fmt.Errorf("usage: gen <grade> <topic...>")
	}
	req := requestFromFlags()
	req.Grade = grade
	req.Topic = strings.TrimSpace(topic)
	return req, nil
}

// runJob starts a job and streams its events without blocking input.
func runJob(mgr jobRunner, req state.Request) {
	id := mgr.Start(context.Background(), req, flagRegenerate)
	listener.AsyncPrintln(fmt.Sprintf("[Job %s STARTED] %s grade %s", id, req.Topic, req.Grade))

	stream, err := mgr.Stream(id)
	if err != nil {
		listener.AsyncPrintln(err.Error())
		return
	}
	go func() {
		for ev := range stream {
			if line := display.FormatEvent(ev); line != "" {
				listener.AsyncPrintln(line)
			}
		}
		if final, err := mgr.Result(id); err == nil {
			listener.AsyncPrintln(display.FormatResult(final))
		}
	}()
}

// jobRunner is the manager surface the interactive loop needs.
type jobRunner interface {
	Start(ctx context.Context, req state.Request, regenerate bool) string
	Stream(jobID string) (<-chan observe.Event, error)
	Result(jobID string) (state.State, error)
}
