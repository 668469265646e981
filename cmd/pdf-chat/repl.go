package main

import (
	"bufio"
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a3tai/pdf-assistant/internal/client/api"
	"github.com/a3tai/pdf-assistant/internal/client/chat"
	"github.com/a3tai/pdf-assistant/internal/client/realtime"
	"github.com/a3tai/pdf-assistant/internal/models"
)

const replHelp = `Type a message to talk to the assistant. Commands:
  /upload <file.pdf>        upload a PDF
  /files                    list session files
  /download <id> [dir]      save a file
  /delete <id>              delete a file
  /retry                    resend the last message after an error
  /clear                    clear the chat history
  /new                      start a new session
  /help                     show this help
  /quit                     leave`

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat (default)",
		Args:  cobra.NoArgs,
		RunE:  c.runChat,
	}
}

// transcriptPrinter prints messages the user did not type, once each.
type transcriptPrinter struct {
	c       *cli
	mu      sync.Mutex
	printed map[string]bool
}

func (p *transcriptPrinter) update(msgs []models.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range msgs {
		if p.printed[m.ID] {
			continue
		}
		p.printed[m.ID] = true
		if m.MessageType == models.MessageUser {
			continue
		}
		p.c.printMessage(m)
	}
}

func (p *transcriptPrinter) reset(msgs []models.ChatMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printed = make(map[string]bool, len(msgs))
	for _, m := range msgs {
		p.printed[m.ID] = true
	}
}

func (c *cli) runChat(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sessionID, err := c.sessionID()
	if err != nil {
		return c.fail(err)
	}

	rt := realtime.New(c.v.GetString("server"), realtime.WithLogger(c.logger.Named("realtime")))
	defer rt.Disconnect()

	conv := chat.New(c.api, c.sessions, chat.WithLogger(c.logger.Named("chat")))
	detach := conv.AttachRealtime(rt)
	defer detach()

	rt.OnStatus(func(ev realtime.StatusEvent) {
		switch ev.Status {
		case realtime.StatusReconnecting:
			c.out.printf("* connection lost, retrying in %s (attempt %d)\n", ev.Delay, ev.Attempt)
		case realtime.StatusFailed:
			c.out.printf("* live updates unavailable; chat still works\n")
		}
	})
	rt.Subscribe(models.WSOperationUpdate, func(msg models.WebSocketMessage) {
		var update models.OperationUpdate
		if err := msg.DecodeData(&update); err == nil && update.Message != "" {
			c.out.printf("* %s\n", update.Message)
		}
	})
	rt.Subscribe(models.WSError, func(msg models.WebSocketMessage) {
		c.out.printf("* server: %s\n", msg.Message)
	})

	if err := rt.Connect(ctx, sessionID); err != nil {
		c.logger.Warn("live updates unavailable", zap.Error(err))
	}

	// Load history first so it is not printed again by the live printer.
	if err := conv.Load(ctx); err != nil && !api.IsNotFound(err) {
		c.out.printf("* could not load history: %s\n", api.ErrorMessage(err))
	}
	printer := &transcriptPrinter{c: c}
	printer.reset(conv.Messages())
	for _, m := range conv.Messages() {
		c.printMessage(m)
	}
	conv.OnChange(printer.update)

	c.sessions.OnReset(func(id string) {
		conv.Reset()
		printer.reset(nil)
		if err := rt.Connect(ctx, id); err != nil {
			c.logger.Warn("live updates unavailable", zap.Error(err))
		}
	})

	c.out.printf("Session %s. Type /help for commands.\n", sessionID)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		c.out.printf("> ")
		if !scanner.Scan() {
			c.out.printf("\n")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			// Failures land in the transcript as retryable errors.
			_ = conv.Send(ctx, line)
			continue
		}
		if quit := c.replCommand(cmd, conv, line); quit {
			return nil
		}
	}
}

func (c *cli) replCommand(cmd *cobra.Command, conv *chat.Chat, line string) bool {
	fields := strings.Fields(line)
	name, args := fields[0], fields[1:]
	ctx := cmd.Context()

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		c.out.printf("%s\n", replHelp)
	case "/upload":
		if len(args) == 0 {
			c.out.printf("usage: /upload <file.pdf>\n")
			return false
		}
		for _, path := range args {
			_ = c.upload(cmd, path)
		}
	case "/files":
		_ = c.listFiles(cmd)
	case "/download":
		if len(args) == 0 {
			c.out.printf("usage: /download <file-id> [dir]\n")
			return false
		}
		dir := "."
		if len(args) > 1 {
			dir = args[1]
		}
		_ = c.download(cmd, args[0], dir)
	case "/delete":
		if len(args) == 0 {
			c.out.printf("usage: /delete <file-id>\n")
			return false
		}
		_ = c.delete(cmd, args[0])
	case "/retry":
		_ = conv.Retry(ctx)
	case "/clear":
		if err := conv.Clear(ctx); err != nil {
			c.out.printf("Error: %s\n", api.ErrorMessage(err))
			return false
		}
		c.out.printf("Chat history cleared\n")
	case "/new":
		id, err := c.sessions.NewSession()
		if err != nil {
			c.out.printf("Error: %s\n", api.ErrorMessage(err))
			return false
		}
		c.out.printf("Started session %s\n", id)
	default:
		c.out.printf("unknown command %s\n%s\n", name, replHelp)
	}
	return false
}
