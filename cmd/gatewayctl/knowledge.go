package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shliew97/frappe-whatsapp/internal/conversation"
)

func newKnowledgeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Manage the reference notes used to answer customer questions",
	}
	cmd.AddCommand(newKnowledgeLoadCmd(a))
	return cmd
}

func newKnowledgeLoadCmd(a *app) *cobra.Command {
	var (
		topic   string
		replace bool
	)
	c := &cobra.Command{
		Use:   "load <file>",
		Short: "Load snippets from a file; snippets are separated by blank lines, # starts a comment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			docs, err := parseSnippets(f)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("no snippets found in %s", args[0])
			}

			cfg := a.config()
			repo, err := a.library(cmd.Context(), cfg, a.logger(cfg))
			if err != nil {
				return err
			}
			if replace {
				err = repo.ReplaceDocuments(cmd.Context(), topic, docs)
			} else {
				err = repo.AppendDocuments(cmd.Context(), topic, docs)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d snippets into %s\n", len(docs), topic)
			return nil
		},
	}
	c.Flags().StringVar(&topic, "topic", conversation.GlobalTopic, "Knowledge topic (an outlet name or global)")
	c.Flags().BoolVar(&replace, "replace", false, "Replace the topic's snippets instead of appending")
	return c
}

func parseSnippets(r io.Reader) ([]string, error) {
	var (
		docs    []string
		current []string
	)
	flush := func() {
		if len(current) > 0 {
			docs = append(docs, strings.Join(current, " "))
			current = nil
		}
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "#"):
		default:
			current = append(current, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()
	return docs, nil
}
