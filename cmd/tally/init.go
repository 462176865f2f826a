package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/tallysync/tally/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter config file interactively",
	Long: `Write a starter config file with the jobs you pick.

Secrets are referenced by environment variable name; nothing sensitive
is written to the file. Refuses to overwrite an existing config.`,
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(os.Stderr, "Error: %s already exists\n", configPath)
			os.Exit(1)
		}

		var (
			username string
			keyEnv   = "BEEMINDER_API_KEY"
			enabled  []string
		)

		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Beeminder username").
					Value(&username).
					Validate(func(s string) error {
						if strings.TrimSpace(s) == "" {
							return errors.New("username is required")
						}
						return nil
					}),
				huh.NewInput().
					Title("Environment variable holding your Beeminder API key").
					Value(&keyEnv),
				huh.NewMultiSelect[string]().
					Title("Jobs to scaffold").
					Options(
						huh.NewOption("Focusmate sessions", "focusmate"),
						huh.NewOption("Fatebook questions", "fatebook"),
						huh.NewOption("GitHub commits", "github"),
						huh.NewOption("Amazing Marvin tasks", "marvin"),
						huh.NewOption("Watched titles (ActivityWatch)", "watched"),
						huh.NewOption("Screentime judge (ActivityWatch + Claude)", "screentime"),
					).
					Value(&enabled),
			),
		)
		if err := form.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		content := scaffoldConfig(username, keyEnv, enabled)
		if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", configPath, err)
			os.Exit(1)
		}
		fmt.Printf("%s Wrote %s — fill in the goal names and you're set\n", ui.RenderPass("✓"), configPath)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

// scaffoldConfig renders a starter TOML config for the chosen jobs.
func scaffoldConfig(username, keyEnv string, enabled []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "beeminder_username = %q\n\n", username)
	fmt.Fprintf(&b, "[beeminder_key]\nenv = %q\n", keyEnv)

	has := func(name string) bool {
		for _, e := range enabled {
			if e == name {
				return true
			}
		}
		return false
	}

	if has("focusmate") {
		b.WriteString(`
[focusmate]
goal = "focusmate"
auto_tags = []

[focusmate.key]
env = "FOCUSMATE_API_KEY"
`)
	}
	if has("fatebook") {
		b.WriteString(`
[fatebook]
goal = "fatebook"

[fatebook.key]
env = "FATEBOOK_API_KEY"
`)
	}
	if has("github") {
		b.WriteString(`
[github]
goal = "commits"
username = "your-github-username"

[github.token]
env = "GITHUB_TOKEN"
`)
	}
	if has("marvin") {
		b.WriteString(`
[marvin]
category = "Must Do"
goal = "mustdo"

[marvin.uri]
env = "MARVIN_COUCH_URI"

[marvin.username]
env = "MARVIN_COUCH_USER"

[marvin.password]
env = "MARVIN_COUCH_PASSWORD"

[marvin.database_name]
env = "MARVIN_COUCH_DB"
`)
	}
	if has("watched") {
		b.WriteString(`
[watched]
activity_watch_base_url = "http://localhost:5600"
window_bucket = "aw-watcher-window_myhost"
goal = "watched"
lookback_days = 3
min_video_duration_seconds = 60.0
max_datapoints = 200
`)
	}
	if has("screentime") {
		b.WriteString(`
[screentime]
activity_watch_base_url = "http://localhost:5600"
window_bucket = "aw-watcher-window_myhost"
goal = "screentime"
lookback_days = 3
model = "claude-sonnet-4-5"
min_window_duration_seconds = 30.0
prompt_template = """
Here are the browser window titles I saw today:
{{titles}}

Reply "no" if none of them are distracting. Otherwise reply "yes",
then on the next line say which one is the problem.
"""

[screentime.anthropic_key]
env = "ANTHROPIC_API_KEY"
`)
	}
	return b.String()
}
