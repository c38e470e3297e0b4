package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bobbygour30/admitcard/internal/adminauth"
	"github.com/bobbygour30/admitcard/internal/domain"
)

var errNotLoggedIn = errors.New("not logged in as admin; run portalctl admin login")

func (a *App) adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage registrations",
	}
	cmd.AddCommand(
		a.adminLoginCmd(),
		a.adminLogoutCmd(),
		a.adminListCmd(),
		a.adminDeleteCmd(),
		a.adminDocumentCmd(),
	)
	return cmd
}

func (a *App) adminLoginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session token locally",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if password == "" {
				password = envOr("PORTALCTL_ADMIN_PASSWORD", "")
			}
			if password == "" {
				var err error
				if password, err = a.prompt("Password: "); err != nil {
					return err
				}
			}
			gate := adminauth.NewGate(a.client.Verifier())
			if !gate.Login(ctx, username, password) {
				return adminauth.ErrInvalidCredentials
			}
			session, _ := gate.Session()
			if err := a.tokens.SaveSession(ctx, a.client.BaseURL(), session); err != nil {
				a.warn("session not saved: %v", err)
			}
			if session.ExpiresAt.IsZero() {
				a.success("Logged in as %s", session.Username)
			} else {
				a.success("Logged in as %s until %s", session.Username, session.ExpiresAt.In(domain.IST).Format("2 Jan 2006 15:04 MST"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "admin", "admin username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "admin password (prompted when empty)")
	return cmd
}

func (a *App) adminLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored admin session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.tokens.ClearSession(cmd.Context(), a.client.BaseURL()); err != nil {
				return err
			}
			a.success("Logged out")
			return nil
		},
	}
}

func (a *App) adminListCmd() *cobra.Command {
	var (
		search string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registrations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			session, err := a.adminSession(ctx)
			if err != nil {
				return err
			}
			users, err := a.client.ListRegistrations(ctx, session, search, limit)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				a.warn("No registrations found")
				return nil
			}

			table := tablewriter.NewWriter(a.out)
			table.SetHeader([]string{"Application", "Name", "Union", "Email", "Mobile", "Center", "Shift", "Paid", "Registered"})
			table.SetAutoWrapText(false)
			for _, u := range users {
				paid := "no"
				switch {
				case domain.IsFeeExempt(u.Union):
					paid = "exempt"
				case u.PaymentStatus:
					paid = "yes"
				}
				table.Append([]string{
					u.ApplicationNumber,
					u.Name,
					string(u.Union),
					u.Email,
					u.Mobile,
					u.ExamCenter,
					u.ExamShift,
					paid,
					u.CreatedAt.In(domain.IST).Format("02-01-2006 15:04"),
				})
			}
			table.SetFooter([]string{"", "", "", "", "", "", "", "Total", strconv.Itoa(len(users))})
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "match application number, name or email")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (server default when 0)")
	return cmd
}

func (a *App) adminDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <application-number>",
		Short: "Delete a registration and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			appNo := domain.NormalizeApplicationNumber(args[0])
			session, err := a.adminSession(ctx)
			if err != nil {
				return err
			}
			if !yes {
				answer, err := a.prompt(fmt.Sprintf("Delete %s? This cannot be undone. [y/N] ", appNo))
				if err != nil {
					return err
				}
				if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
					a.warn("Cancelled")
					return nil
				}
			}
			msg, err := a.client.DeleteRegistration(ctx, session, appNo)
			if err != nil {
				return err
			}
			a.success("%s", msg)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation")
	return cmd
}

func (a *App) adminDocumentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "document <application-number> <kind>",
		Short: "Print a short-lived URL for an uploaded document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := a.adminSession(ctx)
			if err != nil {
				return err
			}
			view, err := a.client.DocumentURL(ctx, session, args[0], domain.DocumentKind(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, view.URL)
			if !view.ExpiresAt.IsZero() {
				a.warn("expires in %s", time.Until(view.ExpiresAt).Round(time.Second))
			}
			return nil
		},
	}
}

// adminSession restores the stored session through the gate.
func (a *App) adminSession(ctx context.Context) (adminauth.Session, error) {
	stored, ok, err := a.tokens.LoadSession(ctx, a.client.BaseURL())
	if err != nil {
		return adminauth.Session{}, err
	}
	if !ok {
		return adminauth.Session{}, errNotLoggedIn
	}
	gate := adminauth.NewGate(a.client.Verifier())
	gate.Restore(stored)
	session, ok := gate.Session()
	if !ok {
		return adminauth.Session{}, errNotLoggedIn
	}
	return session, nil
}
