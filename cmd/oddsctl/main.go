package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"odds-server/internal/odds"
	"odds-server/internal/poller"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(newRootCmd(os.Stdout).ExecuteContext(ctx))
}

type cli struct {
	server string
	out    io.Writer
}

func (c *cli) client() *poller.Client {
	return poller.NewClient(c.server, nil)
}

func (c *cli) print(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(out io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("ODDS")
	v.AutomaticEnv()

	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "oddsctl",
		Short:         "Play odds challenges from the terminal.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if !cmd.Flags().Changed("server") && v.IsSet("server") {
				c.server = v.GetString("server")
			}
		},
	}
	root.PersistentFlags().StringVarP(&c.server, "server", "s", "http://localhost:8080", "odds server url (env: ODDS_SERVER)")
	_ = v.BindEnv("server")

	root.AddCommand(
		newCreateCmd(c),
		newShowCmd(c),
		newCeilingCmd(c),
		newRespondCmd(c),
		newHistoryCmd(c),
		newWatchCmd(c),
	)

	root.CompletionOptions.HiddenDefaultCmd = true
	return root
}

func newCreateCmd(c *cli) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create <description>",
		Short: "Start a new match as the challenger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client().CreateMatch(cmd.Context(), strings.Join(args, " "), name)
			if err != nil {
				return err
			}
			return c.print(resp)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "challenger name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <code>",
		Short: "Print the current state of a match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := c.client().FetchMatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return c.print(match)
		},
	}
}

func newCeilingCmd(c *cli) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "ceiling <code> <max>",
		Short: "Accept a match as the challengee and set the odds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			max, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("max must be a number: %w", err)
			}
			resp, err := c.client().SetCeiling(cmd.Context(), args[0], max, name)
			if err != nil {
				return err
			}
			return c.print(resp)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "challengee name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func parseRole(s string) (odds.Role, error) {
	switch strings.ToLower(s) {
	case "challenger":
		return odds.RoleChallenger, nil
	case "challengee":
		return odds.RoleChallengee, nil
	}
	return 0, fmt.Errorf("role must be challenger or challengee, got %q", s)
}

func newRespondCmd(c *cli) *cobra.Command {
	var (
		name string
		role string
	)

	cmd := &cobra.Command{
		Use:   "respond <code> <number>",
		Short: "Pick your number",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("response must be a number: %w", err)
			}
			r, err := parseRole(role)
			if err != nil {
				return err
			}
			resp, err := c.client().SubmitResponse(cmd.Context(), args[0], value, name, r)
			if err != nil {
				return err
			}
			return c.print(resp)
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "your name")
	cmd.Flags().StringVarP(&role, "role", "r", "challenger", "challenger or challengee")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List completed matches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			completed, err := c.client().ListCompleted(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range completed {
				fmt.Fprintf(c.out, "%s  %-10s %d vs %d  %s\n",
					m.Code, m.GameResult.Winner,
					m.GameResult.ChallengerResponse, m.GameResult.ChallengeeResponse,
					m.Description)
			}
			return nil
		},
	}
}

func newWatchCmd(c *cli) *cobra.Command {
	var (
		role     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <code>",
		Short: "Poll a match until the other player has moved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := parseRole(role)
			if err != nil {
				return err
			}

			var lastState odds.State
			onUpdate := func(m *odds.Match) {
				if state := odds.StateOf(m); state != lastState {
					fmt.Fprintf(c.out, "%s: %s\n", m.Code, state)
					lastState = state
				}
			}

			final, err := poller.New(c.client(), interval).Watch(cmd.Context(), args[0], r, onUpdate)
			if err != nil {
				return err
			}
			return c.print(final)
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", "challenger", "challenger or challengee")
	cmd.Flags().DurationVarP(&interval, "interval", "i", poller.DefaultInterval, "poll interval")
	return cmd
}
