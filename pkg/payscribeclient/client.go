/**
 * @description
 * This package provides a client for interacting with the Payscribe collections
 * API. It encapsulates the logic for making authenticated HTTP requests to
 * Payscribe's endpoints, handling request body construction, and parsing
 * responses.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package payscribeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Environment base URLs for the Payscribe API.
const (
	SandboxBaseURL    = "https://sandbox.payscribe.ng/api/v1"
	ProductionBaseURL = "https://api.payscribe.ng/api/v1"
)

// Client is a client for the Payscribe API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Payscribe API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateVirtualAccountRequest carries the inputs for issuing a dynamic
// virtual account.
type CreateVirtualAccountRequest struct {
	Ref           string
	AmountNaira   float64
	AmountType    string // EXACT or ANY
	Description   string
	ExpiryHours   int
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

// VirtualAccountDetails is the normalized result of a successful issuance.
type VirtualAccountDetails struct {
	AccountNumber string
	AccountName   string
	BankName      string
	BankCode      string
	ExpiryDate    string
}

// createVirtualAccountPayload is the wire format Payscribe expects.
type createVirtualAccountPayload struct {
	AccountType string `json:"account_type"`
	Ref         string `json:"ref"`
	Currency    string `json:"currency"`
	Order       struct {
		Amount      float64 `json:"amount"`
		AmountType  string  `json:"amount_type"`
		Description string  `json:"description"`
		Expiry      struct {
			Duration     int    `json:"duration"`
			DurationType string `json:"duration_type"`
		} `json:"expiry"`
	} `json:"order"`
	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	} `json:"customer"`
}

// createVirtualAccountResponse mirrors Payscribe's response envelope.
type createVirtualAccountResponse struct {
	Status      bool   `json:"status"`
	Description string `json:"description"`
	Message     struct {
		Details struct {
			ExpiryDate string `json:"expiry_date"`
			Account    []struct {
				AccountNumber string `json:"account_number"`
				AccountName   string `json:"account_name"`
				BankName      string `json:"bank_name"`
				BankCode      string `json:"bank_code"`
			} `json:"account"`
		} `json:"details"`
	} `json:"message"`
}

// APIError represents a rejected request from the Payscribe API.
type APIError struct {
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("payscribe api error: %s", e.Description)
	}
	return fmt.Sprintf("payscribe api error (status %d)", e.StatusCode)
}

// CreateVirtualAccount asks Payscribe to issue a dynamic virtual account for
// one expected deposit.
func (c *Client) CreateVirtualAccount(ctx context.Context, req CreateVirtualAccountRequest) (*VirtualAccountDetails, error) {
	payload := createVirtualAccountPayload{}
	payload.AccountType = "dynamic"
	payload.Ref = req.Ref
	payload.Currency = "NGN"
	payload.Order.Amount = req.AmountNaira
	payload.Order.AmountType = req.AmountType
	payload.Order.Description = req.Description
	payload.Order.Expiry.Duration = req.ExpiryHours
	payload.Order.Expiry.DurationType = "hours"
	payload.Customer.Name = req.CustomerName
	payload.Customer.Email = req.CustomerEmail
	payload.Customer.Phone = req.CustomerPhone
	if payload.Customer.Phone == "" {
		// Payscribe requires a phone number even though virtual accounts never use it.
		payload.Customer.Phone = "08012345678"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal virtual account request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/collections/virtual-accounts/create", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual account request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute virtual account request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read virtual account response: %w", err)
	}

	var parsed createVirtualAccountResponse
	if err := json.Unmarshal(bodyBytes, &parsed); err != nil {
		log.Printf("level=warn component=payscribe_client op=create_virtual_account status=%d msg=\"unparsable response body\"", resp.StatusCode)
		return nil, fmt.Errorf("failed to decode response (status %d)", resp.StatusCode)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !parsed.Status {
		log.Printf("level=warn component=payscribe_client op=create_virtual_account status=%d description=%q", resp.StatusCode, parsed.Description)
		return nil, &APIError{StatusCode: resp.StatusCode, Description: parsed.Description}
	}

	accounts := parsed.Message.Details.Account
	if len(accounts) == 0 {
		return nil, fmt.Errorf("payscribe response contained no account details")
	}

	return &VirtualAccountDetails{
		AccountNumber: accounts[0].AccountNumber,
		AccountName:   accounts[0].AccountName,
		BankName:      accounts[0].BankName,
		BankCode:      accounts[0].BankCode,
		ExpiryDate:    parsed.Message.Details.ExpiryDate,
	}, nil
}
