package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bobbygour30/admitcard/internal/domain"
	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/portalclient"
	"github.com/bobbygour30/admitcard/internal/workflow"
)

func (a *App) applyCmd() *cobra.Command {
	var (
		formPath string
		files    uploadPaths
		idProof  string
		skipPay  bool
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Register, upload the ID proof, pay if required and fetch the admit card",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			req, err := loadForm(formPath, files)
			if err != nil {
				return err
			}
			document, err := dataURLFromFile(idProof)
			if err != nil {
				return err
			}
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			if err := a.register(ctx, ctrl, req); err != nil {
				return err
			}
			return a.uploadAndPay(ctx, ctrl, domain.DocumentIDProof, document, !skipPay)
		},
	}
	bindFormFlags(cmd, &formPath, &files)
	cmd.Flags().StringVar(&idProof, "id-proof", "", "ID proof (image or PDF)")
	cmd.Flags().BoolVar(&skipPay, "no-pay", false, "stop before the payment step")
	_ = cmd.MarkFlagRequired("id-proof")
	return cmd
}

func (a *App) registerCmd() *cobra.Command {
	var (
		formPath string
		files    uploadPaths
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Submit the registration form",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := loadForm(formPath, files)
			if err != nil {
				return err
			}
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			if err := a.register(cmd.Context(), ctrl, req); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Next: portalctl upload --file <id-proof>")
			return nil
		},
	}
	bindFormFlags(cmd, &formPath, &files)
	return cmd
}

func (a *App) uploadCmd() *cobra.Command {
	var (
		appNo   string
		union   string
		kind    string
		file    string
		skipPay bool
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a supporting document for an application and continue to payment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			document, err := dataURLFromFile(file)
			if err != nil {
				return err
			}
			if appNo == "" {
				record, ok, err := a.tokens.LoadFlow(ctx, currentFlow)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("no application on record; pass --application-number")
				}
				appNo = record.ApplicationNumber
				if union == "" {
					union = string(record.Union)
				}
			}
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			if err := ctrl.Resume(appNo, domain.Union(union)); err != nil {
				return err
			}
			return a.uploadAndPay(ctx, ctrl, domain.DocumentKind(kind), document, !skipPay)
		},
	}
	cmd.Flags().StringVar(&appNo, "application-number", "", "application number (defaults to the last registration)")
	cmd.Flags().StringVar(&union, "union", "", "union the application belongs to")
	cmd.Flags().StringVar(&kind, "kind", string(domain.DocumentIDProof), "document kind (idProof or addressProof)")
	cmd.Flags().StringVar(&file, "file", "", "document to upload")
	cmd.Flags().BoolVar(&skipPay, "no-pay", false, "stop before the payment step")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *App) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [application-number]",
		Short: "Show a registration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appNo, err := a.applicationNumber(cmd.Context(), args)
			if err != nil {
				return err
			}
			reg, err := a.client.FetchRegistration(cmd.Context(), appNo)
			if err != nil {
				return err
			}
			a.heading("Registration " + reg.ApplicationNumber)
			a.keyValues([][2]string{
				{"Name", reg.Name},
				{"Union", reg.Union.DisplayName()},
				{"Email", reg.Email},
				{"Mobile", reg.Mobile},
				{"Exam center", reg.ExamCenter},
				{"Exam shift", reg.ExamShift},
				{"Payment", paymentLabel(reg)},
			})
			return nil
		},
	}
}

func (a *App) admitCardCmd() *cobra.Command {
	var (
		htmlPath string
		resend   bool
	)
	cmd := &cobra.Command{
		Use:   "admit-card [application-number]",
		Short: "Fetch the admit card",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			appNo, err := a.applicationNumber(ctx, args)
			if err != nil {
				return err
			}
			ctrl, err := a.controller()
			if err != nil {
				return err
			}
			card, err := ctrl.LookupAdmitCard(ctx, appNo)
			if err != nil {
				return err
			}
			a.printAdmitCard(card)
			if htmlPath != "" {
				page, err := a.client.AdmitCardHTML(ctx, appNo)
				if err != nil {
					return err
				}
				if err := os.WriteFile(htmlPath, page, 0o644); err != nil {
					return fmt.Errorf("write admit card: %w", err)
				}
				a.success("Printable admit card saved to %s", htmlPath)
			}
			if resend {
				msg, err := a.client.SendAdmitCardEmail(ctx, appNo)
				if err != nil {
					return err
				}
				a.success("%s", msg)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&htmlPath, "html", "", "save the printable admit card to this file")
	cmd.Flags().BoolVar(&resend, "email", false, "send the admit card email again")
	return cmd
}

func bindFormFlags(cmd *cobra.Command, formPath *string, files *uploadPaths) {
	flags := cmd.Flags()
	flags.StringVar(formPath, "form", "", "JSON file with the personal details")
	flags.StringVar(&files.Photo, "photo", "", "passport photo (JPEG or PNG)")
	flags.StringVar(&files.Signature, "signature", "", "signature (JPEG or PNG)")
	flags.StringVar(&files.QualCert, "qual-cert", "", "qualification certificate")
	flags.StringVar(&files.CV, "cv", "", "CV (optional)")
	flags.StringVar(&files.WorkCert, "work-cert", "", "work experience certificate (optional)")
	_ = cmd.MarkFlagRequired("form")
}

func (a *App) register(ctx context.Context, ctrl *workflow.Controller, req portalapi.RegisterRequest) error {
	if err := ctrl.Begin(); err != nil {
		return err
	}
	resp, err := ctrl.SubmitRegistration(ctx, req)
	if err != nil {
		return err
	}
	if err := a.tokens.SaveFlow(ctx, portalclient.FlowRecord{
		Name:              currentFlow,
		ApplicationNumber: resp.ApplicationNumber,
		Union:             ctrl.Union(),
	}); err != nil {
		a.warn("could not remember the application locally: %v", err)
	}
	a.success("Registered. Application number %s", resp.ApplicationNumber)
	a.keyValues([][2]string{
		{"Exam center", resp.ExamCenter},
		{"Exam shift", resp.ExamShift},
	})
	return nil
}

func (a *App) uploadAndPay(ctx context.Context, ctrl *workflow.Controller, kind domain.DocumentKind, document string, pay bool) error {
	if err := ctrl.UploadDocument(ctx, kind, document); err != nil {
		return err
	}
	a.success("Document uploaded")

	for ctrl.State() == workflow.StatePaymentPending {
		if !pay {
			a.warn("Payment pending. Run upload again without --no-pay to pay the fee.")
			return nil
		}
		err := ctrl.Pay(ctx)
		if err == nil {
			a.success("Payment verified")
			break
		}
		if errors.Is(err, workflow.ErrCheckoutCancelled) {
			a.warn("Payment cancelled")
		} else {
			Fail(a.out, err)
		}
		answer, perr := a.prompt("Try the payment again? [y/N] ")
		if perr != nil {
			return perr
		}
		if !strings.EqualFold(answer, "y") && !strings.EqualFold(answer, "yes") {
			return err
		}
	}

	if ctrl.State() != workflow.StateAdmitCardReady {
		return nil
	}
	card, err := ctrl.FetchAdmitCard(ctx)
	if err != nil {
		var apiErr *portalclient.Error
		if errors.As(err, &apiErr) && apiErr.Code == "admit_card_not_released" {
			a.warn("%s", apiErr.Message)
			return nil
		}
		return err
	}
	a.printAdmitCard(card)
	return nil
}

func (a *App) applicationNumber(ctx context.Context, args []string) (string, error) {
	if len(args) > 0 {
		return domain.NormalizeApplicationNumber(args[0]), nil
	}
	record, ok, err := a.tokens.LoadFlow(ctx, currentFlow)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", errors.New("application number required")
	}
	return record.ApplicationNumber, nil
}

func (a *App) printAdmitCard(card portalapi.AdmitCardResponse) {
	u := card.User
	a.heading(u.ExamTitle)
	rows := [][2]string{
		{"Application number", u.ApplicationNumber},
		{"Name", u.Name},
		{"Father's name", u.FatherName},
		{"Union", u.Union.DisplayName()},
		{"Posts", strings.Join(u.SelectedPosts, ", ")},
		{"Districts", strings.Join(u.DistrictPreferences, ", ")},
		{"Exam center", u.ExamCenter},
		{"Exam shift", u.ExamShift},
		{"Reporting", fmt.Sprintf("%d minutes before the shift", u.GateEntryMinutes)},
		{"Issued by", u.Issuer.Name},
	}
	if u.TransactionNumber != "" {
		rows = append(rows, [2]string{"Transaction", u.TransactionNumber})
	}
	a.keyValues(rows)
	if card.EmailSent {
		a.success("Admit card emailed to %s", u.Email)
	} else {
		a.warn("Admit card email was not sent")
	}
}

func (a *App) keyValues(rows [][2]string) {
	table := tablewriter.NewWriter(a.out)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		table.Append([]string{row[0], row[1]})
	}
	table.Render()
}

func paymentLabel(reg portalapi.Registration) string {
	switch {
	case domain.IsFeeExempt(reg.Union):
		return "not required"
	case reg.PaymentStatus:
		return "paid " + reg.TransactionNumber
	default:
		return "pending"
	}
}
