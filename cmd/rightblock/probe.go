package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"rightblock/internal/browser"
	"rightblock/internal/dom"
	"rightblock/internal/site"
)

// CheckResult is one selector health check
type CheckResult struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ProbeResults reports whether the page still looks the way the scanner and
// engine expect
type ProbeResults struct {
	URL            string        `json:"url"`
	Results        []CheckResult `json:"results"`
	OverallSuccess bool          `json:"overall_success"`
	ExecutedAt     time.Time     `json:"executed_at"`
}

func probeCommand(a *app) *cobra.Command {
	var settle time.Duration
	cmd := &cobra.Command{
		Use:   "probe [url]",
		Short: "Check that the page markup still matches the selectors",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			target := a.cfg.Browser.BaseURL
			if len(args) == 1 {
				target = args[0]
			}

			b, err := browser.New(ctx, a.cfg.Browser, a.log.Named("browser"))
			if err != nil {
				return err
			}
			defer b.Close()
			page, err := b.First()
			if err != nil {
				return err
			}
			if err := page.Navigate(ctx, target); err != nil {
				return err
			}
			time.Sleep(settle)

			here, err := page.Location(ctx)
			if err != nil {
				return err
			}
			snap, err := page.Snapshot(ctx)
			if err != nil {
				return err
			}

			res := probe(snap, here, time.Now())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.OverallSuccess {
				return fmt.Errorf("probe failed for %s", here)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&settle, "settle", 3*time.Second, "wait after load before capturing")
	return cmd
}

// probe runs the checks against one snapshot. Profile pages are checked for
// the profile menu trigger, every other page for per-post buttons.
func probe(snap *dom.Snapshot, pageURL string, at time.Time) ProbeResults {
	res := ProbeResults{URL: pageURL, ExecutedAt: at}

	hostCheck := CheckResult{Name: "host allowed", Success: true, Message: "ok"}
	if err := site.CheckHost(pageURL); err != nil {
		hostCheck.Success = false
		hostCheck.Message = err.Error()
	}
	res.Results = append(res.Results, hostCheck)

	me := snap.MyUsername()
	meCheck := CheckResult{Name: "own username", Success: me != "", Message: "found " + me}
	if me == "" {
		meCheck.Message = "navigation profile link not found; own posts would get markers"
	}
	res.Results = append(res.Results, meCheck)

	if profile := site.UsernameFromHref(pageURL); profile != "" {
		ref, strict, ok := snap.ProfileMoreButton()
		c := CheckResult{Name: "profile menu trigger", Success: ok, Details: map[string]any{"ref": ref, "strict": strict}}
		switch {
		case !ok:
			c.Message = "no labelled more button on the profile"
		case strict:
			c.Message = "strict match"
		default:
			c.Message = "only a loose match; the worker will fall back to it"
		}
		res.Results = append(res.Results, c)
	} else {
		var usable []string
		all := snap.MoreButtons()
		for _, b := range all {
			if b.PassesIconFilter() && b.Username != "" {
				usable = append(usable, b.Username)
			}
		}
		res.Results = append(res.Results, CheckResult{
			Name:    "post menu buttons",
			Success: len(usable) > 0,
			Message: fmt.Sprintf("%d of %d labelled buttons are usable", len(usable), len(all)),
			Details: map[string]any{"usernames": usable},
		})
	}

	res.OverallSuccess = true
	for _, r := range res.Results {
		if !r.Success {
			res.OverallSuccess = false
			break
		}
	}
	return res
}
