package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charlesng35/verifolio/internal/models"
	"github.com/charlesng35/verifolio/internal/reconciler"
)

type issuedVerification struct {
	Request *models.VerificationRequest `json:"request"`
	Link    string                      `json:"link"`
	Resent  bool                        `json:"resent"`
}

type verificationView struct {
	Verification *models.VerificationRequest `json:"verification"`
	Summary      string                      `json:"summary"`
}

type transition[T any] struct {
	Request         T    `json:"request"`
	AlreadyResolved bool `json:"already_resolved"`
}

func runVerify(ctx context.Context, c *CLI, opts globalOptions, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.Err, "usage: verifolio verify request|show|approve|reject|list|pending ...")
		return ErrUsage
	}

	s, err := openSession(c, opts, sessionOptions{})
	if err != nil {
		return err
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "request":
		return verifyRequest(ctx, c, s, opts, rest)
	case "show":
		return verifyShow(ctx, c, s, opts, rest)
	case "approve":
		return verifyResolve(ctx, c, s, opts, "approve", rest)
	case "reject":
		return verifyResolve(ctx, c, s, opts, "reject", rest)
	case "list":
		return verifyList(ctx, c, s, opts, "/api/verifications/mine", nil, rest)
	case "pending":
		return verifyList(ctx, c, s, opts, "/api/verifications/pending", []models.Role{models.RoleVerifier}, rest)
	default:
		fmt.Fprintf(c.Err, "unknown verify command %q\n", sub)
		return ErrUsage
	}
}

func verifyRequest(ctx context.Context, c *CLI, s *clientSession, opts globalOptions, args []string) error {
	fs := subcommandFlags(c, "verify request")
	verifier := fs.String("verifier", "", "Email address of the person who should vouch for the claim")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 || strings.TrimSpace(*verifier) == "" {
		fmt.Fprintln(c.Err, "usage: verifolio verify request --verifier EMAIL <experience|education|project> <claim-id>")
		return ErrUsage
	}
	subjectType, ok := models.ParseSubjectType(fs.Arg(0))
	if !ok {
		return fmt.Errorf("unknown claim type %q", fs.Arg(0))
	}

	return s.protect(ctx, c, []models.Role{models.RoleStudent}, func(*reconciler.Session) error {
		path := fmt.Sprintf("/verify/request/%s/%s", strings.ToLower(string(subjectType)), url.PathEscape(fs.Arg(1)))
		var issued issuedVerification
		if err := s.client.Call(ctx, http.MethodPost, path, map[string]string{"verifierEmail": *verifier}, &issued); err != nil {
			return err
		}
		if opts.json {
			return printJSON(c.Out, issued)
		}

		verb := "sent"
		if issued.Resent {
			verb = "re-sent with a fresh link"
		}
		c.printf("Verification request %s %s to %s\n", issued.Request.ID, verb, issued.Request.VerifierEmail)
		c.printf("  link: %s\n", issued.Link)
		return nil
	})
}

func lookupVerification(ctx context.Context, s *clientSession, token string) (verificationView, error) {
	var view verificationView
	err := s.client.Call(ctx, http.MethodGet, "/verify/"+url.PathEscape(token), nil, &view)
	return view, err
}

func verifyShow(ctx context.Context, c *CLI, s *clientSession, opts globalOptions, args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(c.Err, "usage: verifolio verify show <token>")
		return ErrUsage
	}
	view, err := lookupVerification(ctx, s, args[0])
	if err != nil {
		return err
	}
	if opts.json {
		return printJSON(c.Out, view)
	}
	printVerification(c, view)
	return nil
}

func printVerification(c *CLI, view verificationView) {
	req := view.Verification
	c.printf("%s: %s\n", req.SubjectType, view.Summary)
	if req.Requester != nil {
		c.printf("  requested by: %s <%s>\n", req.Requester.DisplayName, req.Requester.Email)
	}
	c.printf("  status:       %s\n", req.Status)
	if req.ExpiresAt != nil {
		c.printf("  expires:      %s\n", req.ExpiresAt.Format(time.RFC1123))
	}
}

// verifyResolve answers a verification link. The token is the credential,
// so no sign-in is required.
func verifyResolve(ctx context.Context, c *CLI, s *clientSession, opts globalOptions, action string, args []string) error {
	fs := subcommandFlags(c, "verify "+action)
	reason := fs.String("reason", "", "Reason shown to the requester (reject only)")
	yes := fs.Bool("yes", false, "Do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(c.Err, "usage: verifolio verify %s [flags] <token>\n", action)
		return ErrUsage
	}
	token := fs.Arg(0)

	if !*yes && c.Interactive {
		view, err := lookupVerification(ctx, s, token)
		if err != nil {
			return err
		}
		printVerification(c, view)
		ok, err := c.confirm(fmt.Sprintf("%s this claim?", capitalize(action)))
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("aborted")
		}
	}

	var body any = struct{}{}
	if action == "reject" {
		text := strings.TrimSpace(*reason)
		if text == "" {
			var err error
			if text, err = c.prompt("Reason (optional)"); err != nil {
				return err
			}
		}
		body = map[string]string{"reason": text}
	}

	var result transition[*models.VerificationRequest]
	if err := s.client.Call(ctx, http.MethodPost, "/verify/"+url.PathEscape(token)+"/"+action, body, &result); err != nil {
		return err
	}
	if opts.json {
		return printJSON(c.Out, result)
	}
	if result.AlreadyResolved {
		c.printf("Request %s was already resolved: %s\n", result.Request.ID, result.Request.Status)
		return nil
	}
	c.printf("Request %s is now %s\n", result.Request.ID, result.Request.Status)
	return nil
}

func verifyList(ctx context.Context, c *CLI, s *clientSession, opts globalOptions, path string, roles []models.Role, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	return s.protect(ctx, c, roles, func(*reconciler.Session) error {
		var requests []models.VerificationRequest
		if err := s.client.Call(ctx, http.MethodGet, path, nil, &requests); err != nil {
			return err
		}
		if opts.json {
			return printJSON(c.Out, requests)
		}
		if len(requests) == 0 {
			c.printf("No verification requests\n")
			return nil
		}

		tw := newTable(c.Out, "ID", "TYPE", "CLAIM", "VERIFIER", "STATUS", "CREATED")
		for _, req := range requests {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", req.ID, req.SubjectType, req.SubjectID, req.VerifierEmail, req.Status, req.CreatedAt.Format(time.DateOnly))
		}
		return tw.Flush()
	})
}

func runAssociations(ctx context.Context, c *CLI, opts globalOptions, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.Err, "usage: verifolio associations request|list|pending|respond ...")
		return ErrUsage
	}

	s, err := openSession(c, opts, sessionOptions{})
	if err != nil {
		return err
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "request":
		return associationRequest(ctx, c, s, opts, rest)
	case "list":
		return associationList(ctx, c, s, opts, "/associations/my-requests", nil, rest)
	case "pending":
		return associationList(ctx, c, s, opts, "/associations/pending", []models.Role{models.RoleVerifier}, rest)
	case "respond":
		return associationRespond(ctx, c, s, opts, rest)
	default:
		fmt.Fprintf(c.Err, "unknown associations command %q\n", sub)
		return ErrUsage
	}
}

func associationRequest(ctx context.Context, c *CLI, s *clientSession, opts globalOptions, args []string) error {
	fs := subcommandFlags(c, "associations request")
	institute := fs.String("institute", "", "Institute to join")
	role := fs.String("role", string(models.RoleStudent), "Requested role: STUDENT or VERIFIER")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*institute) == "" {
		fmt.Fprintln(c.Err, "usage: verifolio associations request --institute NAME [--role STUDENT|VERIFIER]")
		return ErrUsage
	}

	return s.protect(ctx, c, []models.Role{models.RoleStudent, models.RoleVerifier}, func(*reconciler.Session) error {
		body := map[string]string{"institute": *institute, "requestedRole": strings.ToUpper(*role)}
		var request models.AssociationRequest
		if err := s.client.Call(ctx, http.MethodPost, "/associations/request", body, &request); err != nil {
			return err
		}
		if opts.json {
			return printJSON(c.Out, request)
		}
		c.printf("Association request %s for %s as %s is %s\n", request.ID, request.Institute, request.RequestedRole, request.Status)
		return nil
	})
}

func associationList(ctx context.Context, c *CLI, s *clientSession, opts globalOptions, path string, roles []models.Role, args []string) error {
	if len(args) != 0 {
		return ErrUsage
	}
	return s.protect(ctx, c, roles, func(*reconciler.Session) error {
		var requests []models.AssociationRequest
		if err := s.client.Call(ctx, http.MethodGet, path, nil, &requests); err != nil {
			return err
		}
		if opts.json {
			return printJSON(c.Out, requests)
		}
		if len(requests) == 0 {
			c.printf("No association requests\n")
			return nil
		}

		tw := newTable(c.Out, "ID", "STUDENT", "INSTITUTE", "ROLE", "STATUS", "CREATED")
		for _, req := range requests {
			student := req.StudentID
			if req.Student != nil {
				student = req.Student.Email
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", req.ID, student, req.Institute, req.RequestedRole, req.Status, req.CreatedAt.Format(time.DateOnly))
		}
		return tw.Flush()
	})
}

func associationRespond(ctx context.Context, c *CLI, s *clientSession, opts globalOptions, args []string) error {
	fs := subcommandFlags(c, "associations respond")
	action := fs.String("action", "", "approve or reject")
	responseText := fs.String("response", "", "Message for the student")
	if err := fs.Parse(args); err != nil {
		return err
	}
	*action = strings.ToLower(strings.TrimSpace(*action))
	if fs.NArg() != 1 || (*action != "approve" && *action != "reject") {
		fmt.Fprintln(c.Err, "usage: verifolio associations respond --action approve|reject [--response TEXT] <request-id>")
		return ErrUsage
	}

	return s.protect(ctx, c, []models.Role{models.RoleVerifier}, func(*reconciler.Session) error {
		text := strings.TrimSpace(*responseText)
		if text == "" && *action == "reject" {
			var err error
			if text, err = c.prompt("Response (optional)"); err != nil {
				return err
			}
		}

		var result transition[*models.AssociationRequest]
		body := map[string]string{"action": *action, "response": text}
		if err := s.client.Call(ctx, http.MethodPut, "/associations/"+url.PathEscape(fs.Arg(0))+"/respond", body, &result); err != nil {
			return err
		}
		if opts.json {
			return printJSON(c.Out, result)
		}
		if result.AlreadyResolved {
			c.printf("Association request %s was already resolved: %s\n", result.Request.ID, result.Request.Status)
			return nil
		}
		c.printf("Association request %s is now %s\n", result.Request.ID, result.Request.Status)
		return nil
	})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
