package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shliew97/frappe-whatsapp/cmd/mainconfig"
	"github.com/shliew97/frappe-whatsapp/internal/app/bootstrap"
	appconfig "github.com/shliew97/frappe-whatsapp/internal/config"
	"github.com/shliew97/frappe-whatsapp/internal/conversation"
	"github.com/shliew97/frappe-whatsapp/pkg/logging"
)

func newSimulateCmd(a *app) *cobra.Command {
	var (
		sender string
		name   string
		window time.Duration
	)
	c := &cobra.Command{
		Use:   "simulate",
		Short: "Chat with the booking workflow from the terminal using in-memory stores and the mock booking API",
		Long: `Reads one customer message per line from stdin and prints the replies.
Drafts and history live in memory, bookings go to the mock API and nothing is sent to WhatsApp.
The LLM provider from the environment is used when configured. A window above zero coalesces
lines typed within it, as production does.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := simulationConfig(a.config())
			logger := a.logger(cfg)
			return simulate(cmd.Context(), cfg, logger, simulation{
				sender: sender,
				name:   name,
				window: window,
				in:     cmd.InOrStdin(),
				out:    cmd.OutOrStdout(),
			})
		},
	}
	c.Flags().StringVar(&sender, "sender", "60123456789", "WhatsApp id to simulate")
	c.Flags().StringVar(&name, "name", "", "Profile name attached to each message")
	c.Flags().DurationVar(&window, "window", 0, "Debounce window; 0 handles every line on its own")
	return c
}

// simulationConfig isolates a simulation from shared infrastructure.
func simulationConfig(cfg *appconfig.Config) *appconfig.Config {
	sim := *cfg
	sim.DraftStore = "memory"
	sim.BookingAPIMode = "mock"
	sim.DebounceScheduler = "timer"
	sim.WhatsAppAccessToken = ""
	sim.WhatsAppPhoneNumberID = ""
	sim.UseMemoryQueue = true
	sim.ReplyDelay = 0
	return &sim
}

type simulation struct {
	sender string
	name   string
	window time.Duration
	in     io.Reader
	out    io.Writer
}

func simulate(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, s simulation) error {
	awsCfg, err := mainconfig.MaybeLoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	window := s.window
	gw, err := bootstrap.BuildGateway(ctx, cfg, bootstrap.GatewayOptions{
		Stores: bootstrap.StoreDeps{AWS: awsCfg},
		Output: s.out,
		Window: &window,
	}, logger)
	if err != nil {
		return err
	}

	scanner := bufio.NewScanner(s.in)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		msg := conversation.InboundMessage{
			ID:         "sim." + uuid.NewString(),
			Sender:     s.sender,
			SenderName: s.name,
			Kind:       conversation.KindText,
			Text:       text,
			Timestamp:  time.Now().UTC(),
		}
		if err := gw.Coalescer.Enqueue(ctx, msg); err != nil {
			gw.Close()
			return err
		}
	}
	// Close runs any pass still waiting on the window.
	gw.Close()
	if err := scanner.Err(); err != nil {
		return err
	}

	state, err := gw.Engine.State(ctx, s.sender)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "-- final state: %s\n", state)
	return nil
}
