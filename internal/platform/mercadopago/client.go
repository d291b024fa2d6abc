package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/netvend/hotspot/internal/app/service/reconcile"
	"github.com/netvend/hotspot/pkg/config"
)

const defaultTimeout = 10 * time.Second

// Client talks to the MercadoPago payments API. It covers exactly what the
// reconciliation engine needs: create a PIX payment intent and query a
// payment's current status.
type Client struct {
	baseURL   string
	token     string
	publicURL string
	http      *http.Client
	log       *zap.SugaredLogger
}

func NewClient(cfg *config.Config, log *zap.SugaredLogger) *Client {
	timeout := cfg.MercadoPago.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:   strings.TrimRight(cfg.MercadoPago.BaseURL, "/"),
		token:     cfg.MercadoPago.AccessToken,
		publicURL: strings.TrimRight(cfg.MercadoPago.PublicURL, "/"),
		http:      &http.Client{Timeout: timeout},
		log:       log,
	}
}

type paymentPayer struct {
	Email string `json:"email"`
}

type paymentRequest struct {
	TransactionAmount float64      `json:"transaction_amount"`
	Description       string       `json:"description"`
	PaymentMethodID   string       `json:"payment_method_id"`
	NotificationURL   string       `json:"notification_url"`
	ExternalReference string       `json:"external_reference"`
	Payer             paymentPayer `json:"payer"`
}

type paymentResponse struct {
	ID                 json.Number `json:"id"`
	Status             string      `json:"status"`
	ExternalReference  string      `json:"external_reference"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// CreateIntent creates a PIX payment and returns the gateway id plus the QR
// payloads the portal renders. The purchase id travels as
// external_reference and comes back on every webhook.
func (c *Client) CreateIntent(ctx context.Context, req reconcile.CreateIntentRequest) (*reconcile.Intent, error) {
	body := paymentRequest{
		TransactionAmount: float64(req.AmountCents) / 100,
		Description:       req.Description,
		PaymentMethodID:   "pix",
		NotificationURL:   c.publicURL + "/api/v1/webhook/mercadopago",
		ExternalReference: req.Reference,
		Payer:             paymentPayer{Email: fmt.Sprintf("cliente_%s@portal.local", req.Reference)},
	}

	var resp paymentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payments", req.Reference, body, &resp); err != nil {
		return nil, fmt.Errorf("mercadopago create payment: %w", err)
	}

	c.log.Infow("pix payment created", "gateway_id", resp.ID.String(), "reference", req.Reference)
	return &reconcile.Intent{
		GatewayID:    resp.ID.String(),
		QRCode:       resp.PointOfInteraction.TransactionData.QRCode,
		QRCodeBase64: resp.PointOfInteraction.TransactionData.QRCodeBase64,
	}, nil
}

// QueryStatus returns the gateway's current status string for a payment.
func (c *Client) QueryStatus(ctx context.Context, gatewayID string) (string, error) {
	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+gatewayID, "", nil, &resp); err != nil {
		return "", fmt.Errorf("mercadopago query payment %s: %w", gatewayID, err)
	}
	return resp.Status, nil
}

func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var _ reconcile.Gateway = (*Client)(nil)

var Module = fx.Options(
	fx.Provide(
		NewClient,
		func(c *Client) reconcile.Gateway { return c },
	),
)
