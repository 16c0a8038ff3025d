package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"reminderengine/internal/application/dto"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli"
)

var (
	serverURL string
	timeout   time.Duration

	title   string
	body    string
	at      string
	in      string
	id      uint
	minutes int
	state   string

	globalFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "server, s",
			Usage:       "base URL of the reminder service",
			Value:       "http://localhost:8080",
			EnvVar:      "REMINDCTL_SERVER",
			Destination: &serverURL,
		},
		cli.DurationFlag{
			Name:        "timeout",
			Usage:       "request timeout",
			Value:       10 * time.Second,
			Destination: &timeout,
		},
	}

	scheduleFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "title, t",
			Usage:       "reminder title (required)",
			Destination: &title,
		},
		cli.StringFlag{
			Name:        "body, b",
			Usage:       "optional reminder body",
			Destination: &body,
		},
		cli.StringFlag{
			Name:        "at",
			Usage:       "due time in RFC3339, e.g. 2030-01-02T08:00:00+09:00",
			Destination: &at,
		},
		cli.StringFlag{
			Name:        "in",
			Usage:       "due time relative to now, e.g. 90m",
			Destination: &in,
		},
		cli.UintFlag{
			Name:        "id",
			Usage:       "re-schedule the reminder with this id",
			Destination: &id,
		},
	}

	listFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "state",
			Usage:       "only show reminders in this state (scheduled, fired, acknowledged, cancelled)",
			Destination: &state,
		},
	}

	snoozeFlags = []cli.Flag{
		cli.IntFlag{
			Name:        "minutes, m",
			Usage:       "minutes until the reminder fires again",
			Value:       10,
			Destination: &minutes,
		},
	}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "remindctl: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "remindctl"
	app.Usage = "manage reminders on a reminder engine server"
	app.UsageText = "remindctl [--server URL] <command> [arguments...]"
	app.Flags = globalFlags
	app.Commands = []cli.Command{
		{
			Name:    "schedule",
			Aliases: []string{"s"},
			Usage:   "schedule a reminder",
			Flags:   scheduleFlags,
			Action:  schedule,
		},
		{
			Name:    "list",
			Aliases: []string{"l"},
			Usage:   "list reminders ordered by due time",
			Flags:   listFlags,
			Action:  list,
		},
		{
			Name:      "get",
			Usage:     "show one reminder",
			ArgsUsage: "ID",
			Action:    get,
		},
		{
			Name:      "cancel",
			Usage:     "cancel a scheduled reminder",
			ArgsUsage: "ID",
			Action:    idAction(func(ctx context.Context, c *apiClient, id uint) error { return c.Cancel(ctx, id) }, "cancelled"),
		},
		{
			Name:      "ack",
			Usage:     "acknowledge a fired reminder",
			ArgsUsage: "ID",
			Action:    idAction(func(ctx context.Context, c *apiClient, id uint) error { return c.Acknowledge(ctx, id) }, "acknowledged"),
		},
		{
			Name:      "snooze",
			Usage:     "fire a handled reminder again later",
			ArgsUsage: "ID",
			Flags:     snoozeFlags,
			Action:    snooze,
		},
		{
			Name:      "delete",
			Usage:     "delete a reminder",
			ArgsUsage: "ID",
			Action:    idAction(func(ctx context.Context, c *apiClient, id uint) error { return c.Delete(ctx, id) }, "deleted"),
		},
	}
	return app
}

func client() *apiClient {
	return newAPIClient(serverURL, timeout)
}

func parseIDArg(ctx *cli.Context) (uint, error) {
	arg := ctx.Args().First()
	if arg == "" {
		return 0, fmt.Errorf("%s: missing reminder ID", ctx.Command.Name)
	}
	n, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%s: invalid reminder ID %q", ctx.Command.Name, arg)
	}
	return uint(n), nil
}

// dueTime resolves --at or --in against now.
func dueTime(at, in string, now time.Time) (time.Time, error) {
	switch {
	case at != "" && in != "":
		return time.Time{}, fmt.Errorf("use either --at or --in, not both")
	case at != "":
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --at: %w", err)
		}
		return t, nil
	case in != "":
		d, err := time.ParseDuration(in)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --in: %w", err)
		}
		return now.Add(d), nil
	default:
		return time.Time{}, fmt.Errorf("one of --at or --in is required")
	}
}

func schedule(ctx *cli.Context) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("schedule: --title is required")
	}
	due, err := dueTime(at, in, time.Now())
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	req := dto.ScheduleReminderRequest{Title: title, Body: body, DueAt: due}
	if id != 0 {
		req.ID = &id
	}
	newID, err := client().Schedule(context.Background(), req)
	if err != nil {
		return err
	}
	fmt.Printf("reminder %d scheduled for %s (%s)\n", newID, due.Local().Format(time.RFC1123), humanize.Time(due))
	return nil
}

func list(ctx *cli.Context) error {
	reminders, err := client().List(context.Background(), state)
	if err != nil {
		return err
	}
	if len(reminders) == 0 {
		fmt.Println("no reminders")
		return nil
	}
	printReminders(os.Stdout, reminders, time.Now())
	return nil
}

func printReminders(w io.Writer, reminders []dto.ReminderResponse, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tDUE\tTITLE")
	for _, r := range reminders {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", r.ID, r.State, humanize.RelTime(r.DueAt, now, "ago", "from now"), r.Title)
	}
	tw.Flush()
}

func get(ctx *cli.Context) error {
	reminderID, err := parseIDArg(ctx)
	if err != nil {
		return err
	}
	r, err := client().Get(context.Background(), reminderID)
	if err != nil {
		return err
	}
	fmt.Printf("ID:     %d\nTitle:  %s\nState:  %s\nDue:    %s (%s)\n", r.ID, r.Title, r.State, r.DueAt.Local().Format(time.RFC1123), humanize.Time(r.DueAt))
	if r.Body != "" {
		fmt.Printf("Body:   %s\n", r.Body)
	}
	return nil
}

func snooze(ctx *cli.Context) error {
	reminderID, err := parseIDArg(ctx)
	if err != nil {
		return err
	}
	if minutes <= 0 {
		return fmt.Errorf("snooze: --minutes must be positive")
	}
	r, err := client().Snooze(context.Background(), reminderID, minutes)
	if err != nil {
		return err
	}
	fmt.Printf("reminder %d snoozed until %s\n", r.ID, r.DueAt.Local().Format(time.RFC1123))
	return nil
}

func idAction(call func(context.Context, *apiClient, uint) error, done string) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		reminderID, err := parseIDArg(ctx)
		if err != nil {
			return err
		}
		if err := call(context.Background(), client(), reminderID); err != nil {
			return err
		}
		fmt.Printf("reminder %d %s\n", reminderID, done)
		return nil
	}
}
