// The echo CLI: a terminal client for the Echo server built on the client
// package. Credentials persist in ~/.config/echo/credentials.json, so
// separate invocations (and concurrent shells) share one session.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"

	"github.com/sakif/echo/client"
)

func main() {
	app := cli.NewApp()
	app.Name = "echo"
	app.Usage = "track GitHub repositories through an Echo server"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "server",
			Usage:  "base URL of the Echo server",
			EnvVar: "ECHO_SERVER",
			Value:  "http://localhost:8080",
		},
		cli.StringFlag{
			Name:   "credentials",
			Usage:  "path to the credentials file (default: ~/.config/echo/credentials.json)",
			EnvVar: "ECHO_CREDENTIALS",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "login",
			Usage: "sign in with email and password",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "email", Usage: "account email"},
				cli.StringFlag{Name: "password", Usage: "account password", EnvVar: "ECHO_PASSWORD"},
			},
			Action: cmdLogin,
		},
		{
			Name:   "logout",
			Usage:  "sign out and revoke the session",
			Action: cmdLogout,
		},
		{
			Name:   "whoami",
			Usage:  "show the signed-in user",
			Action: cmdWhoami,
		},
		{
			Name:  "repo",
			Usage: "manage tracked repositories",
			Subcommands: []cli.Command{
				{Name: "list", Usage: "list tracked repositories", Action: cmdRepoList},
				{Name: "add", Usage: "track a repository: echo repo add owner/name", Action: cmdRepoAdd},
				{Name: "sync", Usage: "sync a repository now: echo repo sync <id>", Action: cmdRepoSync},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newManager builds a session manager from the global flags.
func newManager(c *cli.Context) (*client.Manager, error) {
	store, err := client.NewCredentialStore(c.GlobalString("credentials"))
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return client.NewManager(client.NewClient(c.GlobalString("server")), store, logger)
}

// authenticated builds a manager and resolves the persisted session,
// refreshing an expired access token along the way.
func authenticated(c *cli.Context) (*client.Manager, error) {
	m, err := newManager(c)
	if err != nil {
		return nil, err
	}
	m.CheckAuth(context.Background())
	if !m.IsAuthenticated() {
		return nil, fmt.Errorf("not signed in; run `echo login` first")
	}
	return m, nil
}

func cmdLogin(c *cli.Context) error {
	email := c.String("email")
	password := c.String("password")
	if email == "" || password == "" {
		return fmt.Errorf("both --email and --password are required")
	}

	m, err := newManager(c)
	if err != nil {
		return err
	}
	if err := m.Login(context.Background(), email, password); err != nil {
		return err
	}

	s := m.Snapshot()
	fmt.Printf("signed in as %s\n", s.User.Email)
	return nil
}

func cmdLogout(c *cli.Context) error {
	m, err := newManager(c)
	if err != nil {
		return err
	}
	// Logout always succeeds locally, even if the server is unreachable.
	m.Logout(context.Background())
	fmt.Println("signed out")
	return nil
}

func cmdWhoami(c *cli.Context) error {
	m, err := authenticated(c)
	if err != nil {
		return err
	}

	s := m.Snapshot()
	fmt.Printf("%s", s.User.Email)
	if s.User.DisplayName != "" {
		fmt.Printf(" (%s)", s.User.DisplayName)
	}
	if s.User.GitHubUsername != "" {
		fmt.Printf(" [github: %s]", s.User.GitHubUsername)
	}
	fmt.Println()
	return nil
}

func cmdRepoList(c *cli.Context) error {
	m, err := authenticated(c)
	if err != nil {
		return err
	}

	repos, err := m.Repositories(context.Background())
	if err != nil {
		return err
	}
	if len(repos) == 0 {
		fmt.Println("no repositories tracked; add one with `echo repo add owner/name`")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREPOSITORY\tLANGUAGE\tSTARS\tLAST SYNC")
	for _, r := range repos {
		lastSync := "never"
		if !r.LastSyncedAt.IsZero() {
			lastSync = r.LastSyncedAt.Local().Format("2006-01-02 15:04")
		}
		if r.SyncError != "" {
			lastSync += " (failed)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.FullName, r.Language, r.StarsCount, lastSync)
	}
	return w.Flush()
}

func cmdRepoAdd(c *cli.Context) error {
	fullName := c.Args().First()
	if fullName == "" {
		return fmt.Errorf("usage: echo repo add owner/name")
	}

	m, err := authenticated(c)
	if err != nil {
		return err
	}

	repo, err := m.AddRepository(context.Background(), fullName)
	if err != nil {
		return err
	}
	fmt.Printf("tracking %s (id %s)\n", repo.FullName, repo.ID)
	return nil
}

func cmdRepoSync(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("usage: echo repo sync <id>")
	}

	m, err := authenticated(c)
	if err != nil {
		return err
	}

	repo, err := m.SyncRepository(context.Background(), id)
	if err != nil {
		return err
	}
	fmt.Printf("synced %s: %d stars, %d forks, %d open issues\n",
		repo.FullName, repo.StarsCount, repo.ForksCount, repo.OpenIssues)
	return nil
}
