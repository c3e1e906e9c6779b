// pumpctl is a terminal client for a running pumpfleet server. The session
// is kept in ~/.config/pumpfleet/session.yaml between invocations.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/KevinKickass/PumpFleet/internal/client"
	"github.com/KevinKickass/PumpFleet/internal/collection"
	"github.com/KevinKickass/PumpFleet/internal/session"
	"github.com/KevinKickass/PumpFleet/internal/validation"
)

const usage = `usage: pumpctl [flags] <command> [args]

commands:
  login              sign in (--username, --password or PUMPCTL_PASSWORD)
  logout             sign out and forget the session
  whoami             print the signed-in user
  list               list pumps (--page, --page-size, --search, --sort)
  show <id>          print one pump with its pressure series
  delete <id>...     delete pumps

flags:
`

func main() {
	flags := pflag.NewFlagSet("pumpctl", pflag.ExitOnError)
	server := flags.String("server", envOr("PUMPCTL_SERVER", "http://localhost:8080"), "pumpfleet server URL")
	username := flags.StringP("username", "u", "admin", "username for login")
	password := flags.StringP("password", "p", "", "password for login")
	page := flags.Int("page", 1, "page number for list")
	pageSize := flags.Int("page-size", 10, "page size for list")
	search := flags.StringP("search", "s", "", "filter term for list")
	sortKey := flags.String("sort", "", "sort order for list: name-asc, name-desc, pressure-asc, pressure-desc")
	timeout := flags.Duration("timeout", 15*time.Second, "request timeout")
	sessionFile := flags.String("session-file", "", "session file (default ~/.config/pumpfleet/session.yaml)")
	verbose := flags.BoolP("verbose", "v", false, "log API calls")
	flags.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flags.PrintDefaults()
	}
	flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) == 0 {
		flags.Usage()
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			die("create logger: %v", err)
		}
		logger = l
	}
	defer logger.Sync()

	path := *sessionFile
	if path == "" {
		var err error
		if path, err = session.DefaultPath(); err != nil {
			die("locate session file: %v", err)
		}
	}
	sess := session.New(session.NewFileStorage(path), logger)
	api := client.New(*server, *timeout, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var err error
	switch cmd := args[0]; cmd {
	case "login":
		pw := *password
		if pw == "" {
			pw = os.Getenv("PUMPCTL_PASSWORD")
		}
		err = login(ctx, sess, api, validation.Credentials{Username: *username, Password: pw})
	case "logout":
		err = logout(ctx, sess, api)
	case "whoami":
		err = whoami(ctx, sess, api)
	case "list":
		err = list(ctx, sess, api, *page, *pageSize, *search, collection.SortKey(*sortKey))
	case "show":
		if len(args) != 2 {
			die("show needs exactly one pump id")
		}
		err = show(ctx, sess, api, args[1])
	case "delete":
		if len(args) < 2 {
			die("delete needs at least one pump id")
		}
		err = remove(ctx, sess, api, args[1:])
	default:
		flags.Usage()
		os.Exit(2)
	}

	if errors.Is(err, client.ErrUnauthorized) {
		// the server no longer knows this token
		_ = sess.SignOut()
		die("session expired, run pumpctl login")
	}
	if err != nil {
		die("%v", err)
	}
}

func login(ctx context.Context, sess *session.Session, api *client.Client, creds validation.Credentials) error {
	u, err := sess.Login(ctx, api, creds)
	if fields, ok := validation.FromError(err); ok {
		for _, msg := range fields {
			fmt.Fprintln(os.Stderr, msg)
		}
		return errors.New("invalid login form")
	}
	if err != nil {
		return err
	}
	fmt.Printf("Signed in as %s\n", u.Username)
	return nil
}

func logout(ctx context.Context, sess *session.Session, api *client.Client) error {
	u, ok := sess.CurrentUser()
	if !ok {
		fmt.Println("Not signed in")
		return nil
	}
	if err := api.WithToken(u.Token).Logout(ctx); err != nil && !errors.Is(err, client.ErrUnauthorized) {
		return err
	}
	if err := sess.SignOut(); err != nil {
		return err
	}
	fmt.Println("Signed out")
	return nil
}

func authed(sess *session.Session, api *client.Client) (*client.Client, error) {
	u, err := sess.Require()
	if err != nil {
		return nil, errors.New("not signed in, run pumpctl login")
	}
	return api.WithToken(u.Token), nil
}

func whoami(ctx context.Context, sess *session.Session, api *client.Client) error {
	c, err := authed(sess, api)
	if err != nil {
		return err
	}
	name, err := c.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Println(name)
	return nil
}

func list(ctx context.Context, sess *session.Session, api *client.Client, page, size int, term string, key collection.SortKey) error {
	c, err := authed(sess, api)
	if err != nil {
		return err
	}

	st, err := c.WaitLoaded(ctx, 200*time.Millisecond)
	if err != nil {
		return err
	}
	if st.Error != "" {
		return errors.New(st.Error)
	}

	if term != st.SearchTerm {
		if _, err := c.Search(ctx, term); err != nil {
			return err
		}
	}
	if key != "" {
		if !key.Valid() {
			return fmt.Errorf("unknown sort order %q", key)
		}
		if _, err := c.Sort(ctx, key); err != nil {
			return err
		}
	}

	res, err := c.List(ctx, page, size)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tAREA\tSTATUS\tCURRENT\tMIN\tMAX")
	for _, p := range res.Page.Items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f\t%.1f\t%.1f\n",
			p.ID, p.Name, p.Type, p.Area, p.Status, p.Stats.Current, p.Stats.Min, p.Stats.Max)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\npage %d of %d (%d pumps)  %s\n",
		res.Page.Number, res.Page.TotalPages, res.Page.TotalItems, pageBar(res.Page.Links))
	return nil
}

func pageBar(links []collection.PageLink) string {
	parts := make([]string, 0, len(links))
	for _, l := range links {
		switch {
		case l.Ellipsis:
			parts = append(parts, "...")
		case l.Active:
			parts = append(parts, fmt.Sprintf("[%d]", l.Number))
		default:
			parts = append(parts, fmt.Sprintf("%d", l.Number))
		}
	}
	return strings.Join(parts, " ")
}

func show(ctx context.Context, sess *session.Session, api *client.Client, id string) error {
	c, err := authed(sess, api)
	if err != nil {
		return err
	}
	p, err := c.Get(ctx, id)
	if errors.Is(err, client.ErrNotFound) {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return errors.New(apiErr.Message)
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", p.ID, p.Name)
	fmt.Printf("  type       %s\n", p.Type)
	fmt.Printf("  area       %s\n", p.Area)
	fmt.Printf("  status     %s\n", p.Status)
	fmt.Printf("  location   %.4f, %.4f %s\n", p.Location.Latitude, p.Location.Longitude, p.Location.Address)
	fmt.Printf("  flow rate  %.1f GPM\n", p.FlowRate)
	fmt.Printf("  offset     %.0f s\n", p.Offset)
	fmt.Printf("  pressure   current %.1f  min %.1f  max %.1f psi\n", p.Stats.Current, p.Stats.Min, p.Stats.Max)
	fmt.Printf("  updated    %s\n", p.UpdatedAt.Format(time.RFC3339))
	for _, pt := range p.Series {
		fmt.Printf("    %s  %6.1f\n", pt.Label, pt.Pressure)
	}
	return nil
}

func remove(ctx context.Context, sess *session.Session, api *client.Client, ids []string) error {
	c, err := authed(sess, api)
	if err != nil {
		return err
	}
	if _, err := c.WaitLoaded(ctx, 200*time.Millisecond); err != nil {
		return err
	}
	removed, err := c.Delete(ctx, ids)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d pump(s): %s\n", len(removed), strings.Join(removed, ", "))
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "pumpctl: "+format+"\n", args...)
	os.Exit(1)
}
