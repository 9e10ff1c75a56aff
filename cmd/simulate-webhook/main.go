package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"course-payment-service/internal/gateway"
	"course-payment-service/internal/signature"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		secret    string
		event     string
		orderID   string
		paymentID string
		eventID   string
		method    string
		amount    int64
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "simulate-webhook [base-url]",
		Short: "Send a signed payment webhook to a running service",
		Long: `Builds a payment webhook body, signs it with the webhook secret and
POSTs it to <base-url>/api/payment/webhook. Point --order-id at an order
created through /api/payment/create-order to exercise reconciliation.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("webhook secret required (--secret or RAZORPAY_WEBHOOK_SECRET)")
			}

			target, err := url.JoinPath(args[0], "/api/payment/webhook")
			if err != nil {
				return fmt.Errorf("invalid base url: %w", err)
			}

			now := time.Now()
			if orderID == "" {
				orderID = fmt.Sprintf("order_sim_%d", now.UnixMilli())
			}
			if paymentID == "" {
				paymentID = fmt.Sprintf("pay_sim_%d", now.UnixMilli())
			}
			if eventID == "" {
				eventID = "evt_sim_" + uuid.NewString()
			}

			body, err := buildPayload(event, orderID, paymentID, method, amount, now)
			if err != nil {
				return err
			}
			sig := signature.Sign(secret, body)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Target:   ", target)
			fmt.Fprintln(out, "Payload:  ", string(body))
			fmt.Fprintln(out, "Signature:", sig)
			if dryRun {
				return nil
			}

			return send(cmd, target, body, sig, eventID)
		},
	}

	cmd.Flags().StringVarP(&secret, "secret", "s", os.Getenv("RAZORPAY_WEBHOOK_SECRET"), "Webhook secret")
	cmd.Flags().StringVarP(&event, "event", "e", gateway.EventPaymentCaptured, "Event name")
	cmd.Flags().StringVar(&orderID, "order-id", "", "Gateway order id (generated if empty)")
	cmd.Flags().StringVar(&paymentID, "payment-id", "", "Gateway payment id (generated if empty)")
	cmd.Flags().StringVar(&eventID, "event-id", "", "Delivery id sent as "+gateway.HeaderEventID)
	cmd.Flags().StringVar(&method, "method", "upi", "Payment method")
	cmd.Flags().Int64VarP(&amount, "amount", "a", 100, "Amount in paise")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the signed request without sending it")

	return cmd
}

func buildPayload(event, orderID, paymentID, method string, amount int64, now time.Time) ([]byte, error) {
	payload := gateway.WebhookEvent{
		Entity:   "event",
		Event:    event,
		Contains: []string{"payment"},
		Payload: gateway.WebhookPayload{
			Payment: &gateway.PaymentWrapper{
				Entity: gateway.PaymentEntity{
					ID:       paymentID,
					OrderID:  orderID,
					Amount:   amount,
					Currency: "INR",
					Status:   "captured",
					Method:   method,
				},
			},
		},
		CreatedAt: now.Unix(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return body, nil
}

func send(cmd *cobra.Command, target string, body []byte, sig, eventID string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(gateway.HeaderSignature, sig)
	req.Header.Set(gateway.HeaderEventID, eventID)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Status:   ", resp.Status)
	fmt.Fprintln(out, "Response: ", string(respBody))
	return nil
}
