package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajz007/ai-voice-planner/internal/calendar"
	"github.com/ajz007/ai-voice-planner/internal/db"
)

func calendarCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Connect Google Calendar and create events",
	}
	cmd.AddCommand(calendarAuthCmd(e))
	cmd.AddCommand(calendarEventCmd(e))
	return cmd
}

func calendarAuthCmd(e *env) *cobra.Command {
	var noBrowser bool
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Google Calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := e.calendar()
			if err != nil {
				return err
			}
			opener := openBrowser
			if noBrowser {
				opener = printURL
			}
			host, err := calendar.NewLoopbackHost(e.cfg.Calendar.CallbackAddress, opener)
			if err != nil {
				return err
			}
			host.Logger = e.logger

			fmt.Fprintf(os.Stderr, "Waiting for consent on %s ...\n", host.RedirectURL())
			if _, err := svc.Authorize(cmd.Context(), host); err != nil {
				return err
			}
			fmt.Printf("Authorized. Credential saved to %s\n", e.cfg.Calendar.TokenFile)
			return nil
		},
	}
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "print the consent URL instead of opening a browser")
	return cmd
}

func calendarEventCmd(e *env) *cobra.Command {
	var (
		title, description, start, end string
		estimate                        float64
	)
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Create an event in the primary calendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := calendar.EventInput{Title: title, Description: description}
			if start != "" {
				ms, err := parseTime(start)
				if err != nil {
					return err
				}
				in.ScheduledStart = db.Ptr(time.UnixMilli(ms))
			}
			if end != "" {
				ms, err := parseTime(end)
				if err != nil {
					return err
				}
				in.ScheduledEnd = db.Ptr(time.UnixMilli(ms))
			}
			if cmd.Flags().Changed("estimate") {
				in.EstimatedHours = &estimate
			}

			svc, err := e.calendar()
			if err != nil {
				return err
			}
			ref, err := svc.CreateEvent(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Printf("Created event %s\n%s\n", ref.ID, ref.HTMLLink)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "event title")
	cmd.Flags().StringVar(&description, "description", "", "event description")
	cmd.Flags().StringVar(&start, "start", "", "start time (default now)")
	cmd.Flags().StringVar(&end, "end", "", "end time")
	cmd.Flags().Float64Var(&estimate, "estimate", 0, "duration in hours when --end is not given")
	cmd.MarkFlagRequired("title")
	return cmd
}

func printURL(url string) error {
	fmt.Fprintf(os.Stderr, "Open this URL to authorize voiceplanner:\n\n  %s\n\n", url)
	return nil
}

// openBrowser launches the desktop browser, falling back to printing url.
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	printURL(url)
	if err := cmd.Start(); err == nil {
		go cmd.Wait()
	}
	return nil
}
