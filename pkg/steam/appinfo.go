package steam

import (
	"context"
	"encoding/json"
	"fmt"
)

// appInfoResponse mirrors the nested shape of the public app-info API:
// data -> <appid> -> depots -> <depotid> -> manifests -> public -> gid.
type appInfoResponse struct {
	Status string             `json:"status"`
	Data   map[string]appInfo `json:"data"`
}

type appInfo struct {
	// The depots object mixes depot entries with unrelated keys
	// (branches, privatebranches), so individual depots are decoded
	// lazily.
	Depots map[string]json.RawMessage `json:"depots"`
}

type depotInfo struct {
	Manifests map[string]manifestRef `json:"manifests"`
}

type manifestRef struct {
	GID json.Number `json:"gid"`
}

// LatestManifestID looks up the current public manifest id (the "gid") for
// the configured app and depot. Any missing key along the metadata path is
// ErrMetadata and aborts the run; nothing has been transferred yet at that
// point.
func (c *CDNClient) LatestManifestID(ctx context.Context) (string, error) {
	c.logger.Info().Uint32("app", c.appID).Msg("getting product info")

	url := fmt.Sprintf("%s/%d", c.appInfoURL, c.appID)
	var resp appInfoResponse
	if err := c.client.GetJSON(ctx, url, &resp); err != nil {
		return "", fmt.Errorf("fetch product info: %w", err)
	}

	app, ok := resp.Data[fmt.Sprintf("%d", c.appID)]
	if !ok {
		return "", fmt.Errorf("%w: app %d not in response", ErrMetadata, c.appID)
	}

	rawDepot, ok := app.Depots[fmt.Sprintf("%d", c.depotID)]
	if !ok {
		return "", fmt.Errorf("%w: depot %d not in app info", ErrMetadata, c.depotID)
	}

	var depot depotInfo
	if err := json.Unmarshal(rawDepot, &depot); err != nil {
		return "", fmt.Errorf("%w: depot %d: %v", ErrMetadata, c.depotID, err)
	}

	public, ok := depot.Manifests["public"]
	if !ok || public.GID.String() == "" {
		return "", fmt.Errorf("%w: no public manifest for depot %d", ErrMetadata, c.depotID)
	}

	gid := public.GID.String()
	c.logger.Info().Str("manifest_id", gid).Msg("latest manifest id")
	return gid, nil
}
