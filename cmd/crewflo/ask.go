package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crewflo/crewflo/internal/assistant"
	"github.com/crewflo/crewflo/internal/ui"
)

var askCmd = &cobra.Command{
	Use:     "ask <question>",
	GroupID: "advanced",
	Short:   "Ask the assistant about the schedule",
	Long: `Send the current projects, suppliers, tasks and detected conflicts to
the assistant together with a question, and print the answer.

Requires assistant.api_key (or CREWFLO_ASSISTANT_API_KEY).

Example:
  crewflo ask "Which supplier is overbooked next week?"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		question := strings.Join(args, " ")

		s := mustOpenSession(false)
		projects := s.ws.Projects.Read()
		suppliers := s.ws.Suppliers.Read()
		tasks := s.ws.Tasks.Read()
		s.close()

		a := assistant.New(assistant.Config{
			APIKey: settings.Assistant.APIKey,
			Model:  settings.Assistant.Model,
			Logger: logger("assistant"),
		})

		fmt.Printf("%s Analyzing %d tasks...\n\n", ui.RenderAccent("✦"), len(tasks))
		answer, _ := a.Analyze(context.Background(), projects, suppliers, tasks, question)
		fmt.Println(answer)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
}
