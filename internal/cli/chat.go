package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imkarma/taskplan/internal/chat"
)

var (
	chatApply bool
	chatReset bool
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the planning assistant",
	Long: `Sends a message to the configured LLM with a snapshot of your open tasks.
Without a message, starts an interactive session (type "exit" to leave).
The conversation is kept in .taskplan/chat.json between runs.

With --apply, tasks suggested in a reply are created on the spot.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatApply, "apply", false, "Create the tasks the assistant suggests")
	chatCmd.Flags().BoolVar(&chatReset, "reset", false, "Forget the previous conversation")
}

func runChat(cmd *cobra.Command, args []string) error {
	a, err := mustApp()
	if err != nil {
		return err
	}
	defer a.Close()

	client, err := chat.NewClient(a.cfg.Chat)
	if err != nil {
		return err
	}

	transcriptPath := dataPath("chat.json")
	transcript := chat.NewTranscript()
	if !chatReset {
		transcript, err = chat.LoadTranscript(transcriptPath)
		if err != nil {
			return err
		}
	}

	session := chat.NewSession(client, a.svc,
		chat.WithTranscript(transcript),
		chat.WithLogger(a.logger),
	)
	ctx := context.Background()

	if len(args) > 0 {
		if err := chatTurn(ctx, session, strings.Join(args, " ")); err != nil {
			return err
		}
		return transcript.Save(transcriptPath)
	}

	fmt.Printf("%sPlanning assistant%s (%s). Type \"exit\" to leave.\n\n", colorBold, colorReset, a.cfg.Chat.Provider)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s>%s ", colorCyan, colorReset)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if err := chatTurn(ctx, session, line); err != nil {
			fmt.Printf("%sError:%s %v\n\n", colorRed, colorReset, err)
			continue
		}
		if err := transcript.Save(transcriptPath); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func chatTurn(ctx context.Context, session *chat.Session, message string) error {
	reply, err := session.Send(ctx, message)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s\n\n", reply)

	if !chatApply {
		return nil
	}
	suggestions := chat.ParseSuggestions(reply)
	if len(suggestions) == 0 {
		return nil
	}
	created, err := session.Apply(ctx, suggestions)
	for _, t := range created {
		fmt.Printf("  %s+%s %s: %s [%s]\n", colorGreen, colorReset, t.ID, t.Title, t.Priority)
	}
	if len(created) > 0 {
		fmt.Println()
	}
	return err
}
