package command

import (
	"fmt"
	"net"

	"github.com/urfave/cli/v2"

	"github.com/utafrali/ExpenseGo/internal/app"
)

// ServeCommand runs the local dashboard over the stored session.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the session dashboard on a local address",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Loopback address to listen on",
				Value:   "127.0.0.1:8080",
				EnvVars: []string{"DASHBOARD_ADDR"},
			},
		},
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	addr := c.String("addr")
	if !loopback(addr) {
		return fmt.Errorf("refusing to serve the session on non-loopback address %q", addr)
	}

	cl, err := clientFrom(c)
	if err != nil {
		return err
	}

	d := app.NewDashboard(cl, addr)
	ln, err := d.Listen()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.App.Writer, "Dashboard listening on http://%s\n", ln.Addr()); err != nil {
		_ = ln.Close()
		return err
	}
	return d.Serve(c.Context, ln)
}

// loopback reports whether addr's host only accepts local connections.
func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
