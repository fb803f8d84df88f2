package eero

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/lexfrei/go-eero/apierror"
)

// Account retrieves the account of the session.
func (c *Client) Account(ctx context.Context) (json.RawMessage, error) {
	data, err := c.Do(ctx, http.MethodGet, "account", nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get account")
	}

	return data, nil
}

// Networks retrieves the networks block of the account.
func (c *Client) Networks(ctx context.Context) (json.RawMessage, error) {
	account, err := c.Account(ctx)
	if err != nil {
		return nil, err
	}

	var fields struct {
		Networks json.RawMessage `json:"networks"`
	}
	if err := json.Unmarshal(account, &fields); err != nil {
		return nil, apierror.Wrap(err, apierror.KindAPI, "account payload is not an object")
	}
	if len(fields.Networks) == 0 {
		return nil, apierror.New(apierror.KindNotFound, "account payload lists no networks")
	}

	return fields.Networks, nil
}

// Network retrieves one network. An empty id means the preferred network.
func (c *Client) Network(ctx context.Context, networkID string) (json.RawMessage, error) {
	return c.networkResource(ctx, networkID, "", "failed to get network")
}

// Eeros retrieves the eero nodes of a network. An empty id means the preferred network.
func (c *Client) Eeros(ctx context.Context, networkID string) (json.RawMessage, error) {
	return c.networkResource(ctx, networkID, "eeros", "failed to list eeros")
}

// Devices retrieves the client devices of a network. An empty id means the preferred network.
func (c *Client) Devices(ctx context.Context, networkID string) (json.RawMessage, error) {
	return c.networkResource(ctx, networkID, "devices", "failed to list devices")
}

// Profiles retrieves the profiles of a network. An empty id means the preferred network.
func (c *Client) Profiles(ctx context.Context, networkID string) (json.RawMessage, error) {
	return c.networkResource(ctx, networkID, "profiles", "failed to list profiles")
}

// RebootEero restarts one eero node. The request is never retried.
func (c *Client) RebootEero(ctx context.Context, eeroID string) (json.RawMessage, error) {
	eeroID = strings.TrimSpace(eeroID)
	if eeroID == "" {
		return nil, apierror.New(apierror.KindValidation, "eero id is required")
	}

	data, err := c.Do(ctx, http.MethodPost, "eeros/"+url.PathEscape(eeroID)+"/reboot", json.RawMessage(`{}`))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reboot eero %s", eeroID)
	}

	return data, nil
}

func (c *Client) networkResource(ctx context.Context, networkID, resource, errorMsg string) (json.RawMessage, error) {
	id, err := c.resolveNetwork(networkID)
	if err != nil {
		return nil, err
	}

	path := "networks/" + url.PathEscape(id)
	if resource != "" {
		path += "/" + resource
	}

	data, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", errorMsg, id)
	}

	return data, nil
}

func (c *Client) resolveNetwork(networkID string) (string, error) {
	if id := strings.TrimSpace(networkID); id != "" {
		return id, nil
	}

	if id := c.session.PreferredNetworkID(); id != "" {
		return id, nil
	}

	return "", apierror.New(apierror.KindValidation, "network id is required and no preferred network is set")
}
