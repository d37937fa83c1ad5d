package cli

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/verifolio/internal/authclient"
	"github.com/charlesng35/verifolio/internal/landing"
	"github.com/charlesng35/verifolio/internal/reconciler"
	"github.com/charlesng35/verifolio/pkg/logger"
	"github.com/charlesng35/verifolio/web"
)

// defaultListen matches the backend's default frontend origin so the
// provider redirect lands on the loopback listener.
const defaultListen = "127.0.0.1:5173"

func runLogin(ctx context.Context, c *CLI, opts globalOptions, args []string) error {
	fs := subcommandFlags(c, "login")
	popup := fs.Bool("popup", false, "Receive the result as a popup message instead of a redirect")
	listen := fs.String("listen", defaultListen, "Loopback address; must match the backend frontend_origin")
	timeout := fs.Duration("timeout", 5*time.Minute, "How long to wait for the sign-in callback")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logger.WithModule("cli")
	loop, err := reconciler.NewLoopback(reconciler.LoopbackConfig{
		Addr:         *listen,
		Page:         web.CallbackPage,
		ExtraOrigins: loopbackAliases(*listen),
		Logger:       log,
	})
	if err != nil {
		return err
	}
	loop.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := loop.Shutdown(shutdownCtx); err != nil {
			log.Debug("loopback shutdown", zap.Error(err))
		}
	}()

	browser := authclient.BrowserFunc(func(u string) error {
		c.printf("Open this URL to sign in:\n  %s\n", u)
		if c.OpenBrowser == nil {
			return nil
		}
		return c.OpenBrowser(u)
	})

	s, err := openSession(c, opts, sessionOptions{popup: *popup, browser: browser, messages: loop.Messages()})
	if err != nil {
		return err
	}

	if _, err := s.client.Initiate(ctx); err != nil {
		if ctx.Err() != nil {
			return err
		}
		fmt.Fprintf(c.Err, "could not open a browser (%v); use the URL above\n", err)
	}
	c.printf("Waiting for the sign-in callback on %s\n", loop.CallbackURL())

	waitCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	outcome, err := awaitOutcome(waitCtx, s.rec, loop)
	if err != nil {
		return err
	}
	if outcome.State != reconciler.StateAccepted {
		return fmt.Errorf("sign-in failed: %s", outcome.Reason)
	}

	if opts.json {
		return printJSON(c.Out, outcome.Session.Identity)
	}
	printIdentity(c, outcome.Session)
	return nil
}

// awaitOutcome returns the first terminal outcome from either a relayed
// callback URL or a popup message.
func awaitOutcome(ctx context.Context, rec *reconciler.Reconciler, loop *reconciler.Loopback) (reconciler.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan reconciler.Outcome, 2)
	go func() {
		if outcome, err := rec.Listen(ctx); err == nil {
			results <- outcome
		}
	}()
	go func() {
		select {
		case signals := <-loop.Signals():
			results <- rec.Run(ctx, signals)
		case <-ctx.Done():
		}
	}()

	select {
	case outcome := <-results:
		return outcome, nil
	case <-ctx.Done():
		return reconciler.Outcome{}, fmt.Errorf("no sign-in callback received: %w", ctx.Err())
	}
}

// loopbackAliases trusts http://localhost:<port> for a 127.0.0.1 listener,
// since browsers report the host they were sent to.
func loopbackAliases(addr string) []string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "0" {
		return nil
	}
	if host == "127.0.0.1" || host == "" {
		return []string{"http://localhost:" + port}
	}
	return nil
}

func runLogout(ctx context.Context, c *CLI, opts globalOptions, args []string) error {
	if err := subcommandFlags(c, "logout").Parse(args); err != nil {
		return err
	}

	s, err := openSession(c, opts, sessionOptions{})
	if err != nil {
		return err
	}

	if err := s.client.Logout(ctx); err != nil {
		fmt.Fprintf(c.Err, "warning: server logout failed: %v\n", err)
	}
	if err := s.rec.Logout(); err != nil {
		return fmt.Errorf("clear local session: %w", err)
	}
	c.printf("Signed out\n")
	return nil
}

func runWhoami(ctx context.Context, c *CLI, opts globalOptions, args []string) error {
	if err := subcommandFlags(c, "whoami").Parse(args); err != nil {
		return err
	}

	s, err := openSession(c, opts, sessionOptions{})
	if err != nil {
		return err
	}

	return s.protect(ctx, c, nil, func(session *reconciler.Session) error {
		if opts.json {
			return printJSON(c.Out, session.Identity)
		}
		printIdentity(c, session)
		return nil
	})
}

func printIdentity(c *CLI, session *reconciler.Session) {
	identity := session.Identity
	if identity == nil {
		c.printf("Signed in (%s session)\n", session.Kind)
		c.printf("landing page: %s\n", landing.Route(nil))
		return
	}

	role := string(identity.Role)
	if role == "" {
		role = "(not chosen)"
	}
	c.printf("Signed in as %s <%s>\n", identity.Name, identity.Email)
	c.printf("  role:      %s\n", role)
	if identity.Institute != "" {
		c.printf("  institute: %s\n", identity.Institute)
	}
	c.printf("  session:   %s via %s, expires %s\n", session.Kind, session.Channel, session.ExpiresAt.Format(time.RFC1123))
	c.printf("landing page: %s\n", landing.Route(identity))
}
