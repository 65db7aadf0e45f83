package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/italolelis/premiumize_downloader/internal/entity"
)

// FolderList lists the account root (empty id) or a folder's children,
// splitting the heterogeneous result into File and Folder entities by the
// record type tag. Unknown record types are skipped.
func (c *Client) FolderList(ctx context.Context, folderID string) ([]entity.Item, error) {
	const endpoint = "/folder/list"

	params := url.Values{}
	if folderID != "" {
		params.Set("id", folderID)
	}

	env := c.call(ctx, endpoint, params)
	if !env.OK() {
		return nil, env.asError(endpoint)
	}

	var payload struct {
		Content []json.RawMessage `json:"content"`
	}

	if err := env.Decode(&payload); err != nil {
		return nil, &Error{Endpoint: endpoint, Message: err.Error()}
	}

	items := make([]entity.Item, 0, len(payload.Content))

	for _, raw := range payload.Content {
		var tag struct {
			Type string `json:"type"`
		}

		if err := json.Unmarshal(raw, &tag); err != nil {
			continue
		}

		switch tag.Type {
		case "file":
			var f entity.File
			if err := json.Unmarshal(raw, &f); err == nil {
				items = append(items, &f)
			}
		case "folder":
			var f entity.Folder
			if err := json.Unmarshal(raw, &f); err == nil {
				items = append(items, &f)
			}
		}
	}

	return items, nil
}

// TransferList lists all transfers of the account.
func (c *Client) TransferList(ctx context.Context) ([]*entity.Transfer, error) {
	const endpoint = "/transfer/list"

	env := c.call(ctx, endpoint, nil)
	if !env.OK() {
		return nil, env.asError(endpoint)
	}

	var payload struct {
		Transfers []*entity.Transfer `json:"transfers"`
	}

	if err := env.Decode(&payload); err != nil {
		return nil, &Error{Endpoint: endpoint, Message: err.Error()}
	}

	return payload.Transfers, nil
}

// TransferCreate submits a magnet link or URL and returns the new
// transfer's id. A duplicate submission surfaces as an *Error with
// Code "duplicate" (and the existing id when the remote echoes one).
func (c *Client) TransferCreate(ctx context.Context, src string) (string, error) {
	const endpoint = "/transfer/create"

	env := c.call(ctx, endpoint, url.Values{"src": {src}})
	if !env.OK() {
		return "", env.asError(endpoint)
	}

	return string(env.ID), nil
}

// DirectLink is one fetchable entry resolved by TransferDirectDL.
type DirectLink struct {
	Link string      `json:"link"`
	Path string      `json:"path"`
	Size entity.Size `json:"size"`
}

// TransferDirectDL resolves a URL's content into direct download links
// without creating a transfer.
func (c *Client) TransferDirectDL(ctx context.Context, src string) ([]DirectLink, error) {
	const endpoint = "/transfer/directdl"

	env := c.call(ctx, endpoint, url.Values{"src": {src}})
	if !env.OK() {
		return nil, env.asError(endpoint)
	}

	var payload struct {
		Content []DirectLink `json:"content"`
	}

	if err := env.Decode(&payload); err != nil {
		return nil, &Error{Endpoint: endpoint, Message: err.Error()}
	}

	return payload.Content, nil
}

// ZipGenerate asks the remote to build a zip of the given folder and
// returns its download location.
func (c *Client) ZipGenerate(ctx context.Context, folderID string) (string, error) {
	const endpoint = "/zip/generate"

	env := c.call(ctx, endpoint, url.Values{"folders[]": {folderID}})
	if !env.OK() {
		return "", env.asError(endpoint)
	}

	var payload struct {
		Location string `json:"location"`
	}

	if err := env.Decode(&payload); err != nil {
		return "", &Error{Endpoint: endpoint, Message: err.Error()}
	}

	return payload.Location, nil
}

// TorrentBrowse resolves a content hash to its zip download link.
func (c *Client) TorrentBrowse(ctx context.Context, hash string) (string, error) {
	const endpoint = "/torrent/browse"

	env := c.call(ctx, endpoint, url.Values{"hash": {hash}})
	if !env.OK() {
		return "", env.asError(endpoint)
	}

	var payload struct {
		Zip string `json:"zip"`
	}

	if err := env.Decode(&payload); err != nil {
		return "", &Error{Endpoint: endpoint, Message: err.Error()}
	}

	if payload.Zip == "" {
		return "", &Error{Endpoint: endpoint, Message: "no zip link in response"}
	}

	return payload.Zip, nil
}

// Delete removes a remote entity, dispatching to the endpoint matching its
// kind.
func (c *Client) Delete(ctx context.Context, kind entity.Kind, id string) error {
	var endpoint string

	switch kind {
	case entity.KindFile:
		endpoint = "/item/delete"
	case entity.KindFolder:
		endpoint = "/folder/delete"
	case entity.KindTransfer:
		endpoint = "/transfer/delete"
	default:
		return fmt.Errorf("cannot delete entity of kind %s", kind)
	}

	env := c.call(ctx, endpoint, url.Values{"id": {id}})
	if !env.OK() {
		return env.asError(endpoint)
	}

	return nil
}
