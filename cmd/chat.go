package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tgrelay/pkg/backend"
	"tgrelay/pkg/logger"
)

var (
	chatMessage        string
	chatConversationID string
)

// chatCmd sends messages to the backend from the terminal: an operator
// smoke test that exercises the same gateway path the bot uses.
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message to the backend agent",
	Long:  "Forwards one message (or an interactive session) to the configured backend agent API and prints the reply.",
	Run: func(cmd *cobra.Command, args []string) {
		message := resolveMessage(args)

		baseURL := strings.TrimSpace(os.Getenv("AGENT_API_URL"))
		if baseURL == "" {
			fmt.Println("AGENT_API_URL is not configured")
			return
		}

		var tokens backend.TokenSource
		if token := strings.TrimSpace(os.Getenv("BACKEND_AUTH_TOKEN")); token != "" {
			tokens = backend.StaticTokenSource(token)
		}

		gateway := backend.NewGateway(baseURL, tokens, nil)
		defer gateway.Close()

		ctx := context.Background()

		if message != "" {
			runSingleMessage(ctx, gateway, message)
			return
		}

		runInteractive(ctx, gateway)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "message text to send")
	chatCmd.Flags().StringVarP(&chatConversationID, "conversation", "c", "cli_local", "conversation ID to use")
}

func resolveMessage(args []string) string {
	if value := strings.TrimSpace(chatMessage); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

func runSingleMessage(ctx context.Context, gateway *backend.Gateway, message string) {
	response, err := gateway.SendMessage(ctx, chatConversationID, message, nil, logger.RequestID())
	if err != nil {
		fmt.Printf("message failed: %v\n", err)
		return
	}

	fmt.Println(response)
}

func runInteractive(ctx context.Context, gateway *backend.Gateway) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				fmt.Printf("input error: %v\n", err)
			}
			return
		}

		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		if isExitCommand(message) {
			return
		}

		response, err := gateway.SendMessage(ctx, chatConversationID, message, nil, logger.RequestID())
		if err != nil {
			fmt.Printf("message failed: %v\n", err)
			continue
		}

		fmt.Println(response)
	}
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit", ":q":
		return true
	default:
		return false
	}
}
