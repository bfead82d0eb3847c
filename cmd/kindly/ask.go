package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bowerhall/kindly/internal/matcher"
)

var askLanguage string

var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Match a message against the knowledge base",
	Long: `Ask prints the reply the bot would give, with its confidence and source.
Without arguments it reads one message per line from stdin.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		lang := askLanguage
		if lang == "" {
			lang = a.cfg.Matcher.DefaultLanguage
		}

		if len(args) > 0 {
			printResult(cmd.OutOrStdout(), a.engine.Match(strings.Join(args, " "), lang))
			return nil
		}

		return askLines(cmd.InOrStdin(), cmd.OutOrStdout(), a.engine, lang)
	},
}

func init() {
	askCmd.Flags().StringVarP(&askLanguage, "language", "l", "", "reply language (defaults to DEFAULT_LANGUAGE)")
}

func askLines(in io.Reader, out io.Writer, engine *matcher.Engine, lang string) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		printResult(out, engine.Match(line, lang))
	}
	return scanner.Err()
}

func printResult(w io.Writer, res matcher.Result) {
	fmt.Fprintln(w, res.Reply)
	if res.DialogueID != "" {
		fmt.Fprintf(w, "  confidence=%.3f source=%s dialogue=%s\n", res.Confidence, res.Source, res.DialogueID)
		return
	}
	fmt.Fprintf(w, "  confidence=%.3f source=%s\n", res.Confidence, res.Source)
}
