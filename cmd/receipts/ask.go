package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/receipt-ledger/internal/cli"
	"github.com/Veraticus/receipt-ledger/internal/common"
	"github.com/Veraticus/receipt-ledger/internal/query"
)

func askCmd() *cobra.Command {
	var (
		sessionID string
		useModel  bool
		showSQL   bool
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about your receipts",
		Example: `  receipts ask "how many flagged receipts are there"
  receipts ask "show receipts above 50000" --sql
  receipts ask --model "which vendor did we spend the most at"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			engine, cleanup, err := newEngine(store)
			if err != nil {
				return err
			}
			defer cleanup()

			if useModel && !engine.HasModel() {
				return common.NewUserError("no language model is configured; set llm.enabled in the config", common.ErrMissingConfig)
			}

			req := query.Request{
				Message:   strings.Join(args, " "),
				SessionID: sessionID,
				UseModel:  useModel,
			}
			resp, askErr := engine.Ask(cmd.Context(), req)
			if resp == nil {
				if errors.Is(askErr, query.ErrEmptyQuestion) {
					return common.NewUserError("ask needs a question", askErr)
				}
				return askErr
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(resp); err != nil {
					return fmt.Errorf("failed to encode response: %w", err)
				}
			} else {
				fmt.Fprintln(out, cli.RenderAnswer(resp, showSQL))
				if sessionID == "" {
					fmt.Fprintln(out, cli.SubtleStyle.Render("Session: "+resp.SessionID))
				}
			}

			// The reply is printed either way; a failed query or chat log
			// write still exits non-zero.
			return askErr
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing chat session")
	cmd.Flags().BoolVar(&useModel, "model", false, "answer with the language model")
	cmd.Flags().BoolVar(&showSQL, "sql", false, "show the query that answered the question")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response envelope as JSON")

	return cmd
}

func chatCmd() *cobra.Command {
	var (
		sessionID string
		useModel  bool
		plain     bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat about your receipts",
		Long: `Start an interactive chat. Every question and answer is written to one
session, which can be continued later with --session or read back with history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			engine, cleanup, err := newEngine(store)
			if err != nil {
				return err
			}
			defer cleanup()

			opts := cli.ChatOptions{
				SessionID:      sessionID,
				UseModel:       useModel,
				ModelAvailable: engine.HasModel(),
			}

			var id string
			if plain || !isTerminal(os.Stdin) {
				id, err = cli.RunPlainChat(cmd.Context(), engine, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
			} else {
				id, err = cli.RunChat(cmd.Context(), engine, opts)
			}
			if err != nil {
				return err
			}

			if id != "" {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("Session: "+id))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "continue an existing chat session")
	cmd.Flags().BoolVar(&useModel, "model", false, "start with model answers on")
	cmd.Flags().BoolVar(&plain, "plain", false, "use a simple prompt instead of the full-screen chat")

	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history [session]",
		Short: "Show a chat session, or list sessions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				messages, err := query.NewEngine(store, query.Options{}).History(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to load session: %w", err)
				}
				fmt.Fprint(out, cli.RenderHistory(messages))
				return nil
			}

			sessions, err := store.ListChatSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}
			if len(sessions) == 0 {
				fmt.Fprintln(out, cli.SubtleStyle.Render("No chat sessions yet."))
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintf(out, "%s  %s  %s\n",
					cli.InfoStyle.Render(s.SessionID),
					s.FirstMessage.Format("2006-01-02 15:04"),
					cli.SubtleStyle.Render(plural(s.MessageCount, "message")))
			}
			return nil
		},
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
