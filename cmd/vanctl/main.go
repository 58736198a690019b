package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"van-dispatch/internal/client"
	"van-dispatch/internal/config"
	"van-dispatch/internal/middleware"
)

type cli struct {
	server      string
	credentials string
	out         io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, client.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "session expired, run: vanctl login")
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:           "vanctl",
		Short:         "Admin console for van route generation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serverDefault := os.Getenv("VANCTL_SERVER")
	if serverDefault == "" {
		serverDefault = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&c.server, "server", serverDefault, "route service base URL")
	root.PersistentFlags().StringVar(&c.credentials, "credentials", "", "credentials file (default ~/.vanctl/credentials.json)")

	root.AddCommand(
		c.loginCommand(),
		c.logoutCommand(),
		c.tokenCommand(),
		c.generateCommand(),
		c.vansCommand(),
		c.assignmentsCommand(),
	)
	return root
}

func (c *cli) store() (client.FileStore, error) {
	path := c.credentials
	if path == "" {
		var err error
		if path, err = client.DefaultCredentialsPath(); err != nil {
			return client.FileStore{}, err
		}
	}
	return client.FileStore{Path: path}, nil
}

func (c *cli) auth() (*client.AuthState, error) {
	store, err := c.store()
	if err != nil {
		return nil, err
	}
	return client.NewAuthState(store)
}

func (c *cli) client() (*client.Client, error) {
	auth, err := c.auth()
	if err != nil {
		return nil, err
	}
	if auth.Token() == "" {
		return nil, client.ErrUnauthorized
	}
	return client.New(c.server, auth), nil
}

func (c *cli) loginCommand() *cobra.Command {
	var token, user string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an admin bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return errors.New("--token is required")
			}
			auth, err := c.auth()
			if err != nil {
				return err
			}
			if err := auth.Save(token, user); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "logged in")
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "admin bearer token")
	cmd.Flags().StringVar(&user, "user", "", "admin user description")
	return cmd
}

func (c *cli) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := c.auth()
			if err != nil {
				return err
			}
			if err := auth.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "logged out")
			return nil
		},
	}
}

// tokenCommand выпускает токен с секретом из окружения сервера
func (c *cli) tokenCommand() *cobra.Command {
	var sub string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin token using the server's JWT settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.Auth.Validate(); err != nil {
				return err
			}
			token, err := middleware.NewJWT(&cfg.Auth).GenerateToken(sub, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.out, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "admin", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}

func (c *cli) generateCommand() *cobra.Command {
	var start string
	var days int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate routes for the next days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if start == "" {
				start = time.Now().Format("2006-01-02")
			}
			if err := client.ValidateDate(start); err != nil {
				return err
			}
			if err := client.ValidateDaysAhead(days); err != nil {
				return err
			}
			api, err := c.client()
			if err != nil {
				return err
			}
			res, err := api.GenerateWeeklyRoutes(cmd.Context(), start, days)
			if err != nil {
				return err
			}
			printWeekly(c.out, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day, YYYY-MM-DD (default today)")
	cmd.Flags().IntVar(&days, "days", 7, "number of days, 1-14")
	return cmd
}

func (c *cli) vansCommand() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "vans",
		Short: "List vans and their schedule for a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			if err := client.ValidateDate(date); err != nil {
				return err
			}
			api, err := c.client()
			if err != nil {
				return err
			}
			vans, err := api.GetVansForDate(cmd.Context(), date)
			if err != nil {
				return err
			}
			printVans(c.out, vans)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date, YYYY-MM-DD (default today)")
	return cmd
}

func (c *cli) assignmentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "assignments <schedule_id>",
		Short: "Show the ordered stops of a schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			assignments, err := api.GetAssignments(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printAssignments(c.out, assignments)
			return nil
		},
	}
}

func printWeekly(out io.Writer, res *client.WeeklyRoutes) {
	fmt.Fprintf(out, "routes: %d, requests assigned: %d\n", res.TotalRoutes.Int(), res.TotalRequestsAssigned.Int())
	if err := res.CheckTotals(); err != nil {
		fmt.Fprintln(out, "warning:", err)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSCHEDULE\tVAN\tSTOPS\tKM\tKM/STOP")
	for _, day := range res.RoutesByDay {
		if len(day.Routes) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t0\t-\t-\n", day.Date)
			continue
		}
		for _, r := range day.Routes {
			van := r.Schedule.VanNumber
			if van == "" {
				van = r.Schedule.VanID
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f\t%.2f\n",
				day.Date, r.Schedule.ID, van, len(r.Assignments),
				r.TotalDistanceKm.Float64(), r.EfficiencyScore.Float64())
		}
	}
	_ = w.Flush()
}

func printVans(out io.Writer, vans []client.Van) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VAN\tNAME\tZONE\tSTATUS\tSCHEDULE\tSCHEDULE STATUS\tSTOPS")
	for _, v := range vans {
		schedule, status, stops := "-", "-", "-"
		if v.ScheduleID != nil {
			schedule = *v.ScheduleID
		}
		if v.ScheduleStatus != nil {
			status = *v.ScheduleStatus
		}
		if v.AssignmentCount != nil {
			stops = fmt.Sprint(v.AssignmentCount.Int())
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", v.VanNumber, v.VanName, v.Zone, v.Status, schedule, status, stops)
	}
	_ = w.Flush()
}

func printAssignments(out io.Writer, assignments []client.Assignment) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tARRIVAL\tDEPARTURE\tCUSTOMER\tADDRESS\tURGENCY\tKM")
	for _, a := range assignments {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.2f\t%.2f\n",
			a.RouteSequence.Int(), a.EstimatedArrivalTime, a.EstimatedDepartureTime,
			a.CustomerName, a.Address, a.UrgencyScore.Float64(), a.DistanceFromPrevKm.Float64())
	}
	_ = w.Flush()
}
