package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/manifoldco/promptui"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/jobassist/internal/api"
	"github.com/kalambet/jobassist/internal/config"
	"github.com/kalambet/jobassist/internal/jobs"
)

// --- chat ---

const (
	choiceKeepChatting = "Keep chatting"
	applyPrefix        = "Apply: "
)

var chatCmd = &cobra.Command{
	Use:   "chat <phone>",
	Short: "Chat with the assistant as a job seeker",
	Long: `Chat with the assistant through the running server, as if from WhatsApp.

Button prompts and job cards are shown as menus. Type /quit to leave.

Examples:
  jobassist chat +919800000001`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phone := args[0]
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runChat(cmd, client, phone)
	},
}

func runChat(cmd *cobra.Command, client *apiClient, phone string) error {
	ctx := cmd.Context()
	printStep("Chatting as %s. Type /quit to leave.", phone)

	next := ""
	for {
		text := next
		next = ""
		if text == "" {
			prompt := promptui.Prompt{Label: phone}
			line, err := prompt.Run()
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}
			if err != nil {
				return err
			}
			text = strings.TrimSpace(line)
		}
		if text == "/quit" {
			return nil
		}

		replies, err := client.turn(ctx, phone, text)
		if err != nil {
			printError("%v", err)
			continue
		}
		printReplies(replies)

		choice, err := chooseFollowUp(replies)
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}
			return err
		}
		switch {
		case choice == "" || choice == choiceKeepChatting:
		case strings.HasPrefix(choice, applyPrefix):
			jobID := jobIDFromChoice(replies, choice)
			msg, err := client.apply(ctx, phone, jobID)
			if err != nil {
				printError("%v", err)
				continue
			}
			printReplies([]messageView{{Sender: "bot", Type: "text", Content: msg}})
		default:
			next = choice
		}
	}
}

// chooseFollowUp offers the last reply's buttons, or apply actions when the
// turn returned job cards. It returns "" when there is nothing to choose.
func chooseFollowUp(replies []messageView) (string, error) {
	items := followUpItems(replies)
	if len(items) == 0 {
		return "", nil
	}
	sel := promptui.Select{Label: "Choose", Items: items}
	_, choice, err := sel.Run()
	return choice, err
}

func followUpItems(replies []messageView) []string {
	if len(replies) == 0 {
		return nil
	}
	if last := replies[len(replies)-1]; len(last.Options) > 0 {
		return last.Options
	}

	var items []string
	for _, m := range replies {
		if m.Type == "job-card" && m.Job != nil {
			items = append(items, applyPrefix+m.Job.Title+" ("+m.Job.Company+")")
		}
	}
	if len(items) == 0 {
		return nil
	}
	return append(items, choiceKeepChatting)
}

func jobIDFromChoice(replies []messageView, choice string) string {
	for _, m := range replies {
		if m.Job != nil && applyPrefix+m.Job.Title+" ("+m.Job.Company+")" == choice {
			return m.Job.ID
		}
	}
	return ""
}

// --- jobs ---

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage the job catalog",
}

type jobListResult struct {
	Jobs  []jobView `json:"jobs"`
	Total int       `json:"total"`
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List postings",
	Long: `List postings, optionally filtered by city and skill.

Examples:
  jobassist jobs list
  jobassist jobs list --city Mumbai --skill delivery`,
	RunE: func(cmd *cobra.Command, args []string) error {
		city, _ := cmd.Flags().GetString("city")
		skill, _ := cmd.Flags().GetString("skill")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if city != "" {
			q.Set("city", city)
		}
		if skill != "" {
			q.Set("skill", skill)
		}
		q.Set("limit", fmt.Sprint(limit))

		resp, err := client.get(cmd.Context(), "/v1/jobs?"+q.Encode())
		if err != nil {
			return err
		}
		var result jobListResult
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Jobs) == 0 {
			fmt.Println("No jobs found.")
			return nil
		}
		for _, j := range result.Jobs {
			fmt.Printf("%s  %s at %s, %s\n", colorize(colorCyan, shortID(j.ID)), j.Title, j.Company, j.City)
		}
		if result.Total > len(result.Jobs) {
			fmt.Printf("(%d of %d)\n", len(result.Jobs), result.Total)
		}
		return nil
	},
}

var jobsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import postings from a YAML catalog",
	Long: `Import postings from a YAML catalog. Re-importing the same file updates
postings in place.

Example file:
  jobs:
    - title: Delivery Partner
      company: Zepto
      city: Mumbai
      salary: "₹18,000/month"
      type: full-time
      description: Two-wheeler deliveries within 5 km.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer f.Close()

		list, err := jobs.LoadCatalog(f)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		for i, j := range list {
			resp, err := client.post(cmd.Context(), "/v1/jobs", map[string]string{
				"id":          j.ID,
				"title":       j.Title,
				"company":     j.Company,
				"city":        j.City,
				"salary":      j.Salary,
				"type":        string(j.Type),
				"description": j.Description,
			})
			if err != nil {
				return err
			}
			var saved jobView
			if err := decodeJSON(resp, &saved); err != nil {
				return fmt.Errorf("importing %q (%d of %d): %w", j.Title, i+1, len(list), err)
			}
		}
		printSuccess("Imported %d postings", len(list))
		return nil
	},
}

var jobsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a single posting",
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{}
		for _, name := range []string{"title", "company", "city", "salary", "type", "description"} {
			v, _ := cmd.Flags().GetString(name)
			body[name] = v
		}
		if body["title"] == "" || body["company"] == "" || body["city"] == "" {
			return fmt.Errorf("--title, --company and --city are required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/jobs", body)
		if err != nil {
			return err
		}
		var saved jobView
		if err := decodeJSON(resp, &saved); err != nil {
			return err
		}
		printSuccess("Added %s (%s)", saved.Title, saved.ID)
		return nil
	},
}

var jobsRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a posting with its applications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if err := client.removeJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		printSuccess("Removed %s", args[0])
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("city", "", "filter by city")
	jobsListCmd.Flags().String("skill", "", "filter by skill")
	jobsListCmd.Flags().Int("limit", 20, "maximum number of postings to list")

	jobsAddCmd.Flags().String("title", "", "job title")
	jobsAddCmd.Flags().String("company", "", "company name")
	jobsAddCmd.Flags().String("city", "", "city")
	jobsAddCmd.Flags().String("salary", "", "salary text, e.g. ₹15,000/month")
	jobsAddCmd.Flags().String("type", "full-time", "full-time, part-time or contract")
	jobsAddCmd.Flags().String("description", "", "description")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsImportCmd)
	jobsCmd.AddCommand(jobsAddCmd)
	jobsCmd.AddCommand(jobsRemoveCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- profile ---

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect or clear seeker profiles",
}

var profileShowCmd = &cobra.Command{
	Use:   "show <phone>",
	Short: "Show a seeker profile as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), profilePath(args[0]))
		if err != nil {
			return err
		}
		var profile any
		if err := decodeJSON(resp, &profile); err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(profile)
	},
}

var profileHistoryCmd = &cobra.Command{
	Use:   "history <phone>",
	Short: "Show a seeker's conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("%s/messages?limit=%d", profilePath(args[0]), limit))
		if err != nil {
			return err
		}
		var msgs []messageView
		if err := decodeJSON(resp, &msgs); err != nil {
			return err
		}
		for _, m := range msgs {
			if m.Sender == "user" {
				fmt.Println(colorize(colorBold, "user> ") + m.Content)
				continue
			}
			printReplies([]messageView{m})
		}
		return nil
	},
}

var profileClearCmd = &cobra.Command{
	Use:   "clear <phone>",
	Short: "Delete a seeker with their history and applications",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), profilePath(args[0]))
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted profile %s", args[0])
		return nil
	},
}

func init() {
	profileHistoryCmd.Flags().Int("limit", 0, "only the most recent messages (0 = all)")
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileHistoryCmd)
	profileCmd.AddCommand(profileClearCmd)
}

// --- apply ---

var applyCmd = &cobra.Command{
	Use:   "apply <phone> <job-id>",
	Short: "Submit an application on behalf of a seeker",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		msg, err := client.apply(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		printSuccess("%s", msg)
		return nil
	},
}

// --- reset ---

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all seekers, conversations and applications",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL seeker data. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/v1/admin/reset", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("All seeker data deleted")
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("confirm", false, "confirm the reset")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant to MCP clients over stdio",
	Long: `Serve the assistant to MCP clients over stdio. The store is opened
in-process; logs go to stderr so stdout carries only protocol traffic.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStack(ctx, cfg, os.Stderr)
		if err != nil {
			return err
		}
		defer st.Close()
		st.startIndexing(ctx)

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Conversation: st.conv,
			Profiles:     st.profiles,
			Catalog:      st.catalog,
			Version:      version,
		})
		err = server.NewStdioServer(mcpSrv).Listen(ctx, os.Stdin, os.Stdout)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	},
}
