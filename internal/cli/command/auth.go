package command

import (
	"fmt"
	"sort"

	"github.com/urfave/cli/v2"

	"github.com/utafrali/ExpenseGo/internal/domain"
	"github.com/utafrali/ExpenseGo/pkg/health"
)

// LoginCommand signs in and stores the session.
func LoginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in with email and password",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email", Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password (prompted when omitted)"},
		},
		Action: login,
	}
}

func login(c *cli.Context) error {
	cl, err := clientFrom(c)
	if err != nil {
		return err
	}

	password := c.String("password")
	if password == "" {
		if password, err = prompt(c, "Password: "); err != nil {
			return err
		}
	}

	res := cl.Session.Login(c.Context, domain.LoginInput{Email: c.String("email"), Password: password})
	if !res.OK {
		return resultError(res)
	}
	return signedIn(c, cl.Session.Snapshot().User)
}

// RegisterCommand creates an account and signs in.
func RegisterCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "first-name", Usage: "First name", Required: true},
			&cli.StringFlag{Name: "last-name", Usage: "Last name", Required: true},
			&cli.StringFlag{Name: "email", Aliases: []string{"e"}, Usage: "Account email", Required: true},
			&cli.StringFlag{Name: "username", Usage: "Username", Required: true},
			&cli.StringFlag{Name: "password", Aliases: []string{"p"}, Usage: "Password (prompted when omitted)"},
			&cli.StringFlag{Name: "confirm-password", Usage: "Password confirmation (prompted when omitted)"},
		},
		Action: register,
	}
}

func register(c *cli.Context) error {
	cl, err := clientFrom(c)
	if err != nil {
		return err
	}

	password, confirm := c.String("password"), c.String("confirm-password")
	if password == "" {
		if password, err = prompt(c, "Password: "); err != nil {
			return err
		}
	}
	if !c.IsSet("confirm-password") {
		if confirm, err = prompt(c, "Confirm password: "); err != nil {
			return err
		}
	}

	res := cl.Session.Register(c.Context, domain.RegisterInput{
		FirstName:       c.String("first-name"),
		LastName:        c.String("last-name"),
		Email:           c.String("email"),
		Username:        c.String("username"),
		Password:        password,
		ConfirmPassword: confirm,
	})
	if !res.OK {
		return resultError(res)
	}
	return signedIn(c, cl.Session.Snapshot().User)
}

func signedIn(c *cli.Context, u *domain.User) error {
	_, err := fmt.Fprintf(c.App.Writer, "Signed in as %s <%s>\n", u.DisplayName(), u.Email)
	return err
}

// LogoutCommand ends the session and clears stored credentials.
func LogoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out and forget stored credentials",
		Action: func(c *cli.Context) error {
			cl, err := clientFrom(c)
			if err != nil {
				return err
			}
			cl.Session.Logout(c.Context)
			_, err = fmt.Fprintln(c.App.Writer, "Signed out")
			return err
		},
	}
}

// WhoamiCommand prints the signed-in user.
func WhoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Show the signed-in user",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "refresh", Usage: "Reload the profile from the server"},
		},
		Action: whoami,
	}
}

func whoami(c *cli.Context) error {
	cl, err := requireSession(c)
	if err != nil {
		return err
	}
	if c.Bool("refresh") {
		if res := cl.Session.Verify(c.Context); !res.OK {
			return resultError(res)
		}
	}

	u := cl.Session.Snapshot().User
	return newPrinter(c).emit(u, nil, [][]string{
		{"ID:", fmt.Sprint(u.ID)},
		{"Username:", u.Username},
		{"Email:", u.Email},
		{"Name:", u.DisplayName()},
	})
}

// StatusCommand reports the session, transport and store health.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show session and connection status",
		Action: status,
	}
}

type statusView struct {
	Session string          `json:"session"`
	User    *domain.User    `json:"user,omitempty"`
	APIURL  string          `json:"api_url"`
	Store   string          `json:"credential_store"`
	Breaker string          `json:"circuit_breaker"`
	Health  health.Response `json:"health"`
}

func status(c *cli.Context) error {
	cl, err := clientFrom(c)
	if err != nil {
		return err
	}

	snap := cl.Session.Snapshot()
	view := statusView{
		Session: snap.Status.String(),
		User:    snap.User,
		APIURL:  cl.Config().APIURL,
		Store:   cl.Config().CredentialStore,
		Breaker: cl.BreakerState(),
		Health:  cl.Health.Check(c.Context),
	}

	rows := [][]string{
		{"Session:", view.Session},
		{"API:", view.APIURL},
		{"Store:", view.Store},
		{"Breaker:", view.Breaker},
	}
	if snap.User != nil {
		rows = append(rows, []string{"User:", snap.User.Email})
	}
	names := make([]string, 0, len(view.Health.Checks))
	for name := range view.Health.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		check := view.Health.Checks[name]
		line := string(check.Status)
		if check.Error != "" {
			line += " (" + check.Error + ")"
		}
		rows = append(rows, []string{"Check " + name + ":", line})
	}
	return newPrinter(c).emit(view, nil, rows)
}
