package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pillmemo",
	Short: "pillMemo - medication reminders over Telegram and WhatsApp",
	Long: `pillMemo reminds people to take their medication on a daily or weekly
schedule, records whether each dose was taken or snoozed, and lets users
manage their reminders through a chat conversation.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(historyCmd)
}
