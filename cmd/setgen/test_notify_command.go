package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"setgen/internal/logging"
	"setgen/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification through every configured sink",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if strings.TrimSpace(cfg.Notifications.WebhookURL) == "" && !cfg.Notifications.MailEnabled {
				fmt.Fprintln(out, "Notification not sent: no webhook or mail drop configured")
				return nil
			}
			logger, err := logging.NewFromConfig(cfg, "")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			service := notifications.NewService(cfg, logger)
			if err := service.Publish(cmd.Context(), notifications.EventTest, notifications.Payload{
				Title: "test notification",
				Body:  "setgen notifications are configured correctly.",
			}); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(out, "Test notification sent")
			return nil
		},
	}
}
