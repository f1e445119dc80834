// Package keyauth is a client for the KeyAuth licensing API.
package keyauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultURL = "https://keyauth.win/api/1.3/"

const (
	ResetUnavailableMessage = "HWID Reset is not available on your KeyAuth account.\n\nTo enable:\n1. Log into your KeyAuth dashboard\n2. Go to app settings\n3. Enable 'HWID Reset' feature\n4. Or upgrade to a plan that includes this feature\n\nFor now, users must contact support to reset their HWID."
	ResetDisabledMessage    = "HWID Reset feature is not enabled on your KeyAuth account. Please enable it in your dashboard or contact KeyAuth support."
)

var (
	ErrInvalidApplication = errors.New("invalid application")
	ErrInitFailed         = errors.New("failed to initialize KeyAuth")
)

type Options struct {
	Name       string
	OwnerID    string
	Version    string
	URL        string
	HTTPClient *http.Client
}

type Subscription struct {
	Subscription string `json:"subscription"`
	Key          string `json:"key,omitempty"`
	Expiry       string `json:"expiry"`
}

type UserData struct {
	Username      string         `json:"username"`
	IP            string         `json:"ip"`
	HWID          string         `json:"hwid"`
	Expires       string         `json:"expires"`
	CreateDate    string         `json:"createdate"`
	LastLogin     string         `json:"lastlogin"`
	Subscription  string         `json:"subscription"`
	Subscriptions []Subscription `json:"subscriptions"`
}

type Result struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    *UserData `json:"data,omitempty"`
}

type info struct {
	Username      string         `json:"username"`
	IP            string         `json:"ip"`
	HWID          *string        `json:"hwid"`
	CreateDate    string         `json:"createdate"`
	LastLogin     string         `json:"lastlogin"`
	Subscriptions []Subscription `json:"subscriptions"`
}

type response struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"sessionid"`
	Info      *info  `json:"info"`
}

type Client struct {
	name    string
	ownerID string
	version string
	url     string
	http    *http.Client
	sugar   *zap.SugaredLogger

	mutex       sync.Mutex
	sessionID   string
	initialized bool
}

func New(opts Options, sugar *zap.SugaredLogger) *Client {
	c := &Client{
		name:    opts.Name,
		ownerID: opts.OwnerID,
		version: opts.Version,
		url:     opts.URL,
		http:    opts.HTTPClient,
		sugar:   sugar,
	}

	if c.url == "" {
		c.url = DefaultURL
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 10 * time.Second}
	}
	return c
}

// Init opens a vendor session. It only talks to the vendor once, later calls
// return immediately.
func (c *Client) Init(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.init(ctx)
}

func (c *Client) init(ctx context.Context) error {
	if c.initialized {
		return nil
	}

	resp, err := c.doRequest(ctx, url.Values{
		"type":    {"init"},
		"name":    {c.name},
		"ownerid": {c.ownerID},
		"version": {c.version},
	})
	if errors.Is(err, ErrInvalidApplication) {
		return err
	} else if err != nil {
		c.sugar.Error(err)
		return ErrInitFailed
	}

	if !resp.Success {
		c.sugar.Warnf("KeyAuth init was rejected: %s", resp.Message)
		return fmt.Errorf("%w: %s", ErrInitFailed, resp.Message)
	}

	c.sessionID = resp.SessionID
	c.initialized = true
	return nil
}

func (c *Client) session(ctx context.Context) (string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	err := c.init(ctx)
	if err != nil {
		return "", err
	}
	return c.sessionID, nil
}

// License checks key against the vendor, binding it to hwid. A rejected key
// is not an error, Result.Message carries the vendor's reason.
func (c *Client) License(ctx context.Context, key string, hwid string) (Result, error) {
	sessionID, err := c.session(ctx)
	if err != nil {
		return Result{}, err
	}

	resp, err := c.doRequest(ctx, url.Values{
		"type":      {"license"},
		"name":      {c.name},
		"ownerid":   {c.ownerID},
		"sessionid": {sessionID},
		"key":       {key},
		"hwid":      {hwid},
	})
	if err != nil {
		return Result{}, err
	}

	if !resp.Success {
		return Result{Success: false, Message: resp.Message}, nil
	}

	data, err := loadUserData(resp.Info)
	if err != nil {
		return Result{}, err
	}

	return Result{Success: true, Message: resp.Message, Data: &data}, nil
}

func (c *Client) ResetHWID(ctx context.Context, key string) (Result, error) {
	sessionID, err := c.session(ctx)
	if err != nil {
		return Result{}, err
	}

	resp, err := c.doRequest(ctx, url.Values{
		"type":      {"resethwid"},
		"name":      {c.name},
		"ownerid":   {c.ownerID},
		"sessionid": {sessionID},
		"key":       {key},
	})
	if err != nil {
		c.sugar.Errorf("HWID reset error: %v", err)
		return Result{Success: false, Message: ResetDisabledMessage}, nil
	}

	if resp.Success {
		return Result{Success: true, Message: resp.Message}, nil
	}

	message := strings.ToLower(resp.Message)
	if strings.Contains(message, "not found") || strings.Contains(message, "parameter") {
		return Result{Success: false, Message: ResetUnavailableMessage}, nil
	}

	return Result{Success: false, Message: resp.Message}, nil
}

func (c *Client) doRequest(ctx context.Context, data url.Values) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(data.Encode()))
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("KeyAuth request error: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return response{}, fmt.Errorf("HTTP error! Status: %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return response{}, err
	}

	body = bytes.TrimSpace(body)
	if bytes.Equal(body, []byte("KeyAuth_Invalid")) || bytes.Equal(body, []byte(`"KeyAuth_Invalid"`)) {
		return response{}, ErrInvalidApplication
	}

	var resp response
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return response{}, fmt.Errorf("failed to decode KeyAuth response: %w", err)
	}

	return resp, nil
}

func loadUserData(i *info) (UserData, error) {
	if i == nil || len(i.Subscriptions) == 0 {
		return UserData{}, errors.New("KeyAuth response has no subscriptions")
	}

	hwid := "N/A"
	if i.HWID != nil && *i.HWID != "" {
		hwid = *i.HWID
	}

	return UserData{
		Username:      i.Username,
		IP:            i.IP,
		HWID:          hwid,
		Expires:       i.Subscriptions[0].Expiry,
		CreateDate:    i.CreateDate,
		LastLogin:     i.LastLogin,
		Subscription:  i.Subscriptions[0].Subscription,
		Subscriptions: i.Subscriptions,
	}, nil
}
