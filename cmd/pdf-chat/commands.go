package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/a3tai/pdf-assistant/internal/client/api"
	"github.com/a3tai/pdf-assistant/internal/models"
)

func (c *cli) uploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.pdf>...",
		Short: "Upload PDFs into the current session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := c.upload(cmd, path); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (c *cli) upload(cmd *cobra.Command, path string) error {
	id, err := c.sessionID()
	if err != nil {
		return c.fail(err)
	}
	resp, err := c.api.UploadFile(cmd.Context(), id, path)
	if err != nil {
		return c.fail(err)
	}
	c.out.printf("Uploaded %s (%d pages, %s) as %s\n",
		resp.Filename, resp.PageCount, formatSize(resp.FileSize), resp.FileID)
	return nil
}

func (c *cli) filesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files",
		Short: "List the files in the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.listFiles(cmd)
		},
	}
}

func (c *cli) listFiles(cmd *cobra.Command) error {
	id, err := c.sessionID()
	if err != nil {
		return c.fail(err)
	}
	state, err := c.api.Session(cmd.Context(), id)
	if err != nil {
		if !api.IsNotFound(err) {
			return c.fail(err)
		}
		state = &models.SessionState{SessionID: id}
	}
	if len(state.PDFFiles) == 0 {
		c.out.printf("No files yet. Upload one with: pdf-chat upload <file.pdf>\n")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tNAME\tPAGES\tSIZE\tFROM")
	for _, f := range state.PDFFiles {
		marker := ""
		if f.ID == state.CurrentPDFID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			marker, f.ID, f.Name, f.PageCount, formatSize(f.FileSize), f.ParentID)
	}
	return tw.Flush()
}

func (c *cli) downloadCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "download <file-id>",
		Short: "Download a file from the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.download(cmd, args[0], dir)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to save into")
	return cmd
}

func (c *cli) download(cmd *cobra.Command, fileID, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return c.fail(err)
	}
	path, err := c.api.DownloadTo(cmd.Context(), fileID, dir)
	if err != nil {
		return c.fail(err)
	}
	c.out.printf("Saved %s\n", path)
	return nil
}

func (c *cli) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <file-id>",
		Short: "Delete a file from the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.delete(cmd, args[0])
		},
	}
}

func (c *cli) delete(cmd *cobra.Command, fileID string) error {
	id, err := c.sessionID()
	if err != nil {
		return c.fail(err)
	}
	if err := c.api.DeleteFile(cmd.Context(), id, fileID); err != nil {
		return c.fail(err)
	}
	c.out.printf("Deleted %s\n", fileID)
	return nil
}

func (c *cli) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one chat message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.sessionID()
			if err != nil {
				return c.fail(err)
			}
			reply, err := c.api.SendChat(cmd.Context(), id, strings.Join(args, " "))
			if err != nil {
				return c.fail(err)
			}
			c.printMessage(*reply)
			return nil
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var clearHistory bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show (or clear) the session transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := c.sessionID()
			if err != nil {
				return c.fail(err)
			}
			if clearHistory {
				if err := c.api.ClearChatHistory(cmd.Context(), id); err != nil {
					return c.fail(err)
				}
				c.out.printf("Chat history cleared\n")
				return nil
			}
			history, err := c.api.ChatHistory(cmd.Context(), id)
			if err != nil {
				return c.fail(err)
			}
			if len(history) == 0 {
				c.out.printf("No messages yet.\n")
			}
			for _, msg := range history {
				c.printMessage(msg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearHistory, "clear", false, "clear the transcript instead")
	return cmd
}

func (c *cli) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show or replace the session id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.showSession()
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the current session id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.showSession()
			},
		},
		&cobra.Command{
			Use:   "new",
			Short: "Start a new session (files and chat stay with the old one)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := c.sessions.NewSession()
				if err != nil {
					return c.fail(err)
				}
				c.out.printf("%s\n", id)
				return nil
			},
		},
	)
	return cmd
}

func (c *cli) showSession() error {
	id, err := c.sessionID()
	if err != nil {
		return c.fail(err)
	}
	c.out.printf("%s\n", id)
	return nil
}

func (c *cli) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the backend is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := c.api.Health(cmd.Context())
			if err != nil {
				return c.fail(err)
			}
			c.out.printf("%s: %s\n", c.api.BaseURL(), status)
			return nil
		},
	}
}

func (c *cli) printMessage(msg models.ChatMessage) {
	prefix := map[models.MessageType]string{
		models.MessageUser:      "you",
		models.MessageAssistant: "assistant",
		models.MessageSystem:    "system",
		models.MessageError:     "error",
	}[msg.MessageType]
	if prefix == "" {
		prefix = string(msg.MessageType)
	}

	stamp := formatTime(msg.Timestamp)
	if stamp != "" {
		stamp = "[" + stamp + "] "
	}
	c.out.printf("%s%s: %s\n", stamp, prefix, msg.Content)

	if r := msg.OperationResult; r != nil {
		for _, f := range r.ResultFiles {
			c.out.printf("    -> %s  %s  (%d pages)\n", f.ID, f.Name, f.PageCount)
		}
	}
	if msg.Retryable {
		c.out.printf("    (type /retry to send again)\n")
	}
}
