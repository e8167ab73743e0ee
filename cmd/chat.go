package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive advisory conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, sessionID)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "resume an existing session")
	return cmd
}

func runChat(cmd *cobra.Command, sessionID string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Fprintln(out, "Farm advisor ready. Type 'exit' to quit.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		text := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(text) {
		case "":
			continue
		case "exit", "quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		advice, err := a.advisor.Advise(ctx, text, sessionID)
		if err != nil {
			fmt.Fprintf(out, "Advisor: %v\n", err)
			continue
		}
		sessionID = advice.SessionID
		fmt.Fprintf(out, "Advisor: %s\n\n", advice.AssistantText)
	}
}
