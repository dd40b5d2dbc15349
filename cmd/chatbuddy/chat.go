package main

import (
	"encoding/json"
	"fmt"

	"github.com/avvvet/chatbuddy/internal/models"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	chatSession  string
	chatMessage  string
	chatBusiness string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run a single turn and print the response as JSON",
	Long: `Runs one turn through the full pipeline against the configured session store.

Example:
  chatbuddy chat --session demo -m "show me laptops under $1000"`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id (a new one is generated when empty)")
	chatCmd.Flags().StringVarP(&chatMessage, "message", "m", "", "user message")
	chatCmd.Flags().StringVar(&chatBusiness, "business", "", "business type for the turn")
	_ = chatCmd.MarkFlagRequired("message")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if chatSession == "" {
		chatSession = uuid.NewString()
	}
	resp := a.service.ProcessTurn(ctx, models.TurnRequest{
		SessionID:    chatSession,
		Message:      chatMessage,
		BusinessType: models.BusinessType(chatBusiness),
	})

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
