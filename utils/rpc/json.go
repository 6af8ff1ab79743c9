// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpc holds client helpers for the JSON-RPC endpoints.
package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gorilla/rpc/v2/json2"
)

// SendJSONRequest posts [method] with [params] to [uri] and decodes the result
// into [reply].
func SendJSONRequest(
	ctx context.Context,
	client *http.Client,
	uri *url.URL,
	method string,
	params interface{},
	reply interface{},
) error {
	requestBodyBytes, err := json2.EncodeClientRequest(method, params)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		uri.String(),
		bytes.NewBuffer(requestBodyBytes),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("failed to issue request: %w", err)
	}

	// Return an error for any non successful status code
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drop any error during close to report the original error
		_ = CleanlyCloseBody(resp.Body)
		return fmt.Errorf("received status code: %d", resp.StatusCode)
	}

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		// Drop any error during close to report the original error
		_ = CleanlyCloseBody(resp.Body)
		return fmt.Errorf("failed to decode client response: %w", err)
	}
	return CleanlyCloseBody(resp.Body)
}

// CleanlyCloseBody drains the remaining body so the connection can be reused,
// then closes it.
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}

	_, err := io.Copy(io.Discard, body)
	return errors.Join(err, body.Close())
}
