package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bowerhall/kindly/internal/logger"
)

func init() {
	godotenv.Load()
}

var rootCmd = &cobra.Command{
	Use:   "kindly",
	Short: "Multilingual canned-reply chatbot",
	Long: `Kindly answers messages from a curated corpus of dialogues.

Incoming text is matched against sample utterances with TF-IDF cosine
similarity. Replies are served over HTTP, WebSocket and optional
Telegram and Discord bots.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	rootCmd.AddCommand(serveCmd, askCmd)

	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("kindly failed", "error", err)
	}
}
