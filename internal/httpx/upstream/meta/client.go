package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v21.0"
	defaultTimeout    = 15 * time.Second
)

// Client is a Meta Graph API client for the Messenger Send API and the WhatsApp Cloud API
type Client struct {
	baseURL    string
	apiVersion string
	httpClient *http.Client
}

// ClientOption is a function that configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithAPIVersion sets the API version
func WithAPIVersion(version string) ClientOption {
	return func(c *Client) {
		c.apiVersion = version
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// New creates a new Graph API client
func New(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		apiVersion: defaultAPIVersion,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Graph error codes that mean the request may succeed later
var transientCodes = []int{
	1, 2, // unknown / temporary service error
	4, 17, 32, 613, // rate limits
	80007,          // messenger rate limit
	130429, 131056, // whatsapp throughput / pair rate limit
}

// Graph error codes that mean the access token was rejected
var authCodes = []int{102, 190}

// APIError represents an error from the Graph API
type APIError struct {
	StatusCode   int    `json:"-"`
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph API error: %s (status: %d, code: %d, subcode: %d)", e.Message, e.StatusCode, e.Code, e.ErrorSubcode)
}

// IsTransient reports whether retrying the request may succeed
func (e *APIError) IsTransient() bool {
	if e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return slices.Contains(transientCodes, e.Code)
}

// IsAuth reports whether the provider rejected the credential
func (e *APIError) IsAuth() bool {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return true
	}
	return slices.Contains(authCodes, e.Code)
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// SendOutput is the provider id assigned to a delivered message
type SendOutput struct {
	MessageID string
}

// MessengerSendInput represents input for sending a Messenger message.
// Exactly one of Text and ImageURL is sent.
type MessengerSendInput struct {
	PageID      string
	AccessToken string
	RecipientID string
	Text        string
	ImageURL    string
}

type messengerRequest struct {
	Recipient     messengerRecipient `json:"recipient"`
	MessagingType string             `json:"messaging_type"`
	Message       messengerMessage   `json:"message"`
}

type messengerRecipient struct {
	ID string `json:"id"`
}

type messengerMessage struct {
	Text       string               `json:"text,omitempty"`
	Attachment *messengerAttachment `json:"attachment,omitempty"`
}

type messengerAttachment struct {
	Type    string                  `json:"type"`
	Payload messengerAttachmentBody `json:"payload"`
}

type messengerAttachmentBody struct {
	URL        string `json:"url"`
	IsReusable bool   `json:"is_reusable"`
}

type messengerResponse struct {
	RecipientID string `json:"recipient_id"`
	MessageID   string `json:"message_id"`
}

// SendMessengerMessage sends a reply through the Messenger Send API
// POST /{page-id}/messages
func (c *Client) SendMessengerMessage(ctx context.Context, in MessengerSendInput) (*SendOutput, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, in.PageID)

	params := url.Values{}
	params.Set("access_token", in.AccessToken)

	body := messengerRequest{
		Recipient:     messengerRecipient{ID: in.RecipientID},
		MessagingType: "RESPONSE",
	}
	if in.ImageURL != "" {
		body.Message.Attachment = &messengerAttachment{
			Type:    "image",
			Payload: messengerAttachmentBody{URL: in.ImageURL, IsReusable: true},
		}
	} else {
		body.Message.Text = in.Text
	}

	req, err := c.newJSONRequest(ctx, endpoint+"?"+params.Encode(), body)
	if err != nil {
		return nil, err
	}

	var out messengerResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}

	return &SendOutput{MessageID: out.MessageID}, nil
}

// WhatsAppSendInput represents input for sending a WhatsApp message.
// Exactly one of Text and ImageURL is sent.
type WhatsAppSendInput struct {
	PhoneNumberID string
	AccessToken   string
	To            string
	Text          string
	ImageURL      string
}

type whatsAppRequest struct {
	MessagingProduct string         `json:"messaging_product"`
	RecipientType    string         `json:"recipient_type"`
	To               string         `json:"to"`
	Type             string         `json:"type"`
	Text             *whatsAppText  `json:"text,omitempty"`
	Image            *whatsAppImage `json:"image,omitempty"`
}

type whatsAppText struct {
	Body string `json:"body"`
}

type whatsAppImage struct {
	Link string `json:"link"`
}

type whatsAppResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendWhatsAppMessage sends a reply through the WhatsApp Cloud API
// POST /{phone-number-id}/messages
func (c *Client) SendWhatsAppMessage(ctx context.Context, in WhatsAppSendInput) (*SendOutput, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.apiVersion, in.PhoneNumberID)

	body := whatsAppRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               in.To,
	}
	if in.ImageURL != "" {
		body.Type = "image"
		body.Image = &whatsAppImage{Link: in.ImageURL}
	} else {
		body.Type = "text"
		body.Text = &whatsAppText{Body: in.Text}
	}

	req, err := c.newJSONRequest(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+in.AccessToken)

	var out whatsAppResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}

	sent := &SendOutput{}
	if len(out.Messages) > 0 {
		sent.MessageID = out.Messages[0].ID
	}
	return sent, nil
}

func (c *Client) newJSONRequest(ctx context.Context, endpoint string, body any) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// do executes an HTTP request and decodes the response
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
			return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		}
		errResp.Error.StatusCode = resp.StatusCode
		return &errResp.Error
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
