package ezca

import (
	"context"
	"fmt"
	"time"

	"github.com/danthegoodman1/Provisio/utils"
	"github.com/goccy/go-json"
	"github.com/mailgun/groupcache/v2"
)

const (
	caCacheKey   = "cas"
	caCacheBytes = 1 << 20
)

// newCAGroup caches the CA list in process. No peers are registered, so every fill is local.
// Group names are global to groupcache, hence the unique suffix per client.
func newCAGroup(c *Client) *groupcache.Group {
	c.caGroupName = utils.GenKSortedID("available_cas_")
	return groupcache.NewGroup(c.caGroupName, caCacheBytes, groupcache.GetterFunc(
		func(ctx context.Context, key string, dest groupcache.Sink) error {
			cas, err := c.fetchCAs(ctx)
			if err != nil {
				return fmt.Errorf("error in fetchCAs: %w", err)
			}

			jsonBytes, err := json.Marshal(cas)
			if err != nil {
				return fmt.Errorf("error in json.Marshal for CA list: %w", err)
			}

			return dest.SetBytes(jsonBytes, time.Now().Add(c.opts.CACacheTTL))
		},
	))
}

func (c *Client) cachedCAs(ctx context.Context) ([]CertificateAuthority, error) {
	var b []byte
	if err := c.caGroup.Get(ctx, caCacheKey, groupcache.AllocatingByteSliceSink(&b)); err != nil {
		return nil, err
	}
	var cas []CertificateAuthority
	if err := json.Unmarshal(b, &cas); err != nil {
		return nil, fmt.Errorf("error in json.Unmarshal for cached CA list: %w", err)
	}
	return cas, nil
}

// ForgetCAs drops the cached CA list, if caching is enabled.
func (c *Client) ForgetCAs(ctx context.Context) error {
	if c.caGroup == nil {
		return nil
	}
	return c.caGroup.Remove(ctx, caCacheKey)
}

// Close releases the client's CA cache group. Call it once the client is no longer used.
func (c *Client) Close() {
	if c.caGroup == nil {
		return
	}
	groupcache.DeregisterGroup(c.caGroupName)
}
