package hyperliquid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

// ExchangeClient posts signed actions to /exchange.
type ExchangeClient struct {
	http   *resty.Client
	signer *Signer
	vault  *common.Address
	nonces *nonces
}

func NewExchangeClient(baseURL string, timeout time.Duration, signer *Signer, vault string, n *nonces) (*ExchangeClient, error) {
	if signer == nil {
		return nil, errors.New("signer is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	var vaultAddr *common.Address
	if strings.TrimSpace(vault) != "" {
		addr := common.HexToAddress(vault)
		vaultAddr = &addr
	}
	return &ExchangeClient{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		signer: signer,
		vault:  vaultAddr,
		nonces: n,
	}, nil
}

type signedAction struct {
	Action       any       `json:"action"`
	Nonce        uint64    `json:"nonce"`
	Signature    Signature `json:"signature"`
	VaultAddress *string   `json:"vaultAddress"`
}

// RejectedError is an order or cancel refused by the exchange.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "hyperliquid rejected: " + e.Reason
}

type actionResponse struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type statusesPayload struct {
	Type string `json:"type"`
	Data struct {
		Statuses []json.RawMessage `json:"statuses"`
	} `json:"data"`
}

type orderStatusWire struct {
	Resting *struct {
		Oid int64 `json:"oid"`
	} `json:"resting"`
	Filled *struct {
		Oid int64 `json:"oid"`
	} `json:"filled"`
	Error string `json:"error"`
}

func (c *ExchangeClient) post(ctx context.Context, action any) ([]json.RawMessage, error) {
	nonce := c.nonces.next()
	sig, err := c.signer.SignAction(action, nonce, c.vault)
	if err != nil {
		return nil, err
	}
	payload := signedAction{Action: action, Nonce: nonce, Signature: sig}
	if c.vault != nil {
		addr := c.vault.Hex()
		payload.VaultAddress = &addr
	}
	resp, err := c.http.R().SetContext(ctx).SetBody(payload).Post("/exchange")
	if err != nil {
		return nil, fmt.Errorf("hyperliquid exchange: %w", err)
	}
	if resp.IsError() {
		return nil, &HTTPError{Status: resp.StatusCode(), Body: truncate(string(resp.Body()), 2048)}
	}
	var decoded actionResponse
	if err := json.Unmarshal(resp.Body(), &decoded); err != nil {
		return nil, fmt.Errorf("decode exchange response: %w", err)
	}
	if decoded.Status != "ok" {
		var reason string
		if err := json.Unmarshal(decoded.Response, &reason); err != nil {
			reason = string(decoded.Response)
		}
		return nil, &RejectedError{Reason: reason}
	}
	var statuses statusesPayload
	if err := json.Unmarshal(decoded.Response, &statuses); err != nil {
		return nil, fmt.Errorf("decode exchange statuses: %w", err)
	}
	return statuses.Data.Statuses, nil
}

// PlaceOrder submits a single order and returns the exchange order id.
func (c *ExchangeClient) PlaceOrder(ctx context.Context, order orderWire) (int64, error) {
	statuses, err := c.post(ctx, newOrderAction(order))
	if err != nil {
		return 0, err
	}
	if len(statuses) == 0 {
		return 0, errors.New("hyperliquid order response has no status")
	}
	var status orderStatusWire
	if err := json.Unmarshal(statuses[0], &status); err != nil {
		return 0, fmt.Errorf("decode order status: %w", err)
	}
	switch {
	case status.Error != "":
		return 0, &RejectedError{Reason: status.Error}
	case status.Resting != nil:
		return status.Resting.Oid, nil
	case status.Filled != nil:
		return status.Filled.Oid, nil
	default:
		return 0, fmt.Errorf("unexpected order status %s", string(statuses[0]))
	}
}

func (c *ExchangeClient) CancelOrder(ctx context.Context, asset int, oid int64) error {
	statuses, err := c.post(ctx, newCancelAction(asset, oid))
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		return errors.New("hyperliquid cancel response has no status")
	}
	var ok string
	if err := json.Unmarshal(statuses[0], &ok); err == nil && ok == "success" {
		return nil
	}
	var status orderStatusWire
	if err := json.Unmarshal(statuses[0], &status); err == nil && status.Error != "" {
		return &RejectedError{Reason: status.Error}
	}
	return fmt.Errorf("unexpected cancel status %s", string(statuses[0]))
}
