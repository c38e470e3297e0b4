package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bobbygour30/admitcard/internal/portalapi"
	"github.com/bobbygour30/admitcard/internal/workflow"
)

// terminalCheckout prints the order for the hosted checkout and reads back
// what the provider returned. A blank payment id cancels.
func terminalCheckout(in *bufio.Reader, out io.Writer) workflow.CheckoutFunc {
	return func(ctx context.Context, applicationNumber string, order portalapi.CreateOrderResponse) (workflow.CheckoutResult, error) {
		orderID := order.OrderID
		if orderID == "" {
			orderID = order.Order.ID
		}
		headColor.Fprintln(out, "Payment")
		fmt.Fprintf(out, "  Application: %s\n", applicationNumber)
		fmt.Fprintf(out, "  Order:       %s (%s)\n", orderID, order.Provider)
		fmt.Fprintf(out, "  Amount:      %s\n", formatAmount(order.Amount, order.Currency))
		if order.KeyID != "" {
			fmt.Fprintf(out, "  Key:         %s\n", order.KeyID)
		}
		if order.ClientSecret != "" {
			fmt.Fprintf(out, "  Client secret: %s\n", order.ClientSecret)
		}
		fmt.Fprintln(out, "Complete the payment in the provider checkout, then paste the result.")

		read := func(label string) (string, error) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			fmt.Fprint(out, label)
			line, err := in.ReadString('\n')
			if err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			return strings.TrimSpace(line), nil
		}
		paymentID, err := read("Payment ID (blank to cancel): ")
		if err != nil {
			return workflow.CheckoutResult{}, err
		}
		if paymentID == "" {
			return workflow.CheckoutResult{}, workflow.ErrCheckoutCancelled
		}
		signature, err := read("Signature: ")
		if err != nil {
			return workflow.CheckoutResult{}, err
		}
		return workflow.CheckoutResult{PaymentID: paymentID, OrderID: orderID, Signature: signature}, nil
	}
}

func formatAmount(minor int64, currency string) string {
	if currency == "" {
		currency = "INR"
	}
	return fmt.Sprintf("%s %d.%02d", currency, minor/100, minor%100)
}
