/*
Copyright 2024 Locaweb.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cloudstack

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/locaweb/ai-deploy-infra/pkg/constants"
	"github.com/locaweb/ai-deploy-infra/pkg/metrics"
)

// Resolver turns human names into opaque provider IDs. It is pure
// lookup: no call ever mutates state. A Resolver is scoped to a single
// run; its cache is a convenience to avoid repeating an identical list
// query for the same (kind, name) pair within that run, not a
// persistent cache across invocations (spec.md §9: "a process-local
// cache within a single run is acceptable").
type Resolver struct {
	client *Client
	cache  *lru.Cache[string, string]
	stats  *metrics.Stats
}

// NewResolver returns a Resolver backed by client.
func NewResolver(client *Client, stats *metrics.Stats) *Resolver {
	cache, err := lru.New[string, string](128)
	if err != nil {
		// Only returns an error for a non-positive size, which 128 never is.
		panic(err)
	}

	return &Resolver{client: client, cache: cache, stats: stats}
}

func (r *Resolver) call(ctx context.Context, args ...string) (callResult, error) {
	r.stats.RecordRead()
	return r.client.Call(ctx, args...)
}

func (r *Resolver) cached(kind, name string, fetch func() (string, error)) (string, error) {
	key := kind + ":" + name

	if id, ok := r.cache.Get(key); ok {
		return id, nil
	}

	id, err := fetch()
	if err != nil {
		return "", err
	}

	r.cache.Add(key, id)

	return id, nil
}

// Zone resolves a zone name to its ID.
func (r *Resolver) Zone(ctx context.Context, name string) (string, error) {
	return r.cached("zone", name, func() (string, error) {
		data, err := r.call(ctx, "list", "zones", "name="+name, "filter=id,name")
		if err != nil {
			return "", err
		}

		for _, z := range asSlice(data["zone"]) {
			if asString(z["name"]) == name {
				return asString(z["id"]), nil
			}
		}

		return "", fmt.Errorf("%w: zone %q", ErrNotFound, name)
	})
}

// AllZoneIDs returns every zone ID known to the account, used to
// populate a snapshot policy's zoneids for cross-zone replication. This
// is deliberately never the hard-coded literal some provisioning paths
// this tool descends from used; it is always derived from the live
// zone list.
func (r *Resolver) AllZoneIDs(ctx context.Context) ([]string, error) {
	data, err := r.call(ctx, "list", "zones", "filter=id")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(asSlice(data["zone"])))
	for _, z := range asSlice(data["zone"]) {
		ids = append(ids, asString(z["id"]))
	}

	return ids, nil
}

// NetworkOffering resolves a network offering name to its ID.
func (r *Resolver) NetworkOffering(ctx context.Context, name string) (string, error) {
	return r.cached("networkoffering", name, func() (string, error) {
		data, err := r.call(ctx, "list", "networkofferings", "filter=id,name")
		if err != nil {
			return "", err
		}

		for _, o := range asSlice(data["networkoffering"]) {
			if asString(o["name"]) == name {
				return asString(o["id"]), nil
			}
		}

		return "", fmt.Errorf("%w: network offering %q", ErrNotFound, name)
	})
}

// ServiceOffering resolves a service offering (VM plan) name to its ID.
func (r *Resolver) ServiceOffering(ctx context.Context, name string) (string, error) {
	return r.cached("serviceoffering", name, func() (string, error) {
		data, err := r.call(ctx, "list", "serviceofferings", "filter=id,name")
		if err != nil {
			return "", err
		}

		for _, o := range asSlice(data["serviceoffering"]) {
			if asString(o["name"]) == name {
				return asString(o["id"]), nil
			}
		}

		return "", fmt.Errorf("%w: service offering %q", ErrNotFound, name)
	})
}

// DiskOffering resolves a disk offering name to its ID.
func (r *Resolver) DiskOffering(ctx context.Context, name string) (string, error) {
	return r.cached("diskoffering", name, func() (string, error) {
		data, err := r.call(ctx, "list", "diskofferings", "filter=id,name")
		if err != nil {
			return "", err
		}

		for _, o := range asSlice(data["diskoffering"]) {
			if asString(o["name"]) == name {
				return asString(o["id"]), nil
			}
		}

		return "", fmt.Errorf("%w: disk offering %q", ErrNotFound, name)
	})
}

//nolint:gochecknoglobals
var templateNameRegexp = regexp.MustCompile(constants.TemplateRegex)

// Template discovers the newest featured template in zoneID whose name
// matches constants.TemplateRegex. This is the one non-trivial catalog
// lookup: it lists by keyword, filters by regex, dedupes by ID, and
// sorts by creation time descending.
func (r *Resolver) Template(ctx context.Context, zoneID string) (string, error) {
	return r.cached("template", zoneID, func() (string, error) {
		data, err := r.call(ctx, "list", "templates",
			"templatefilter=featured",
			"keyword="+constants.TemplateKeyword,
			"zoneid="+zoneID,
			"filter=id,name,created")
		if err != nil {
			return "", err
		}

		type candidate struct {
			id      string
			created string
		}

		seen := map[string]bool{}

		var matches []candidate

		for _, t := range asSlice(data["template"]) {
			id := asString(t["id"])
			name := asString(t["name"])

			if !templateNameRegexp.MatchString(name) || seen[id] {
				continue
			}

			seen[id] = true

			matches = append(matches, candidate{id: id, created: asString(t["created"])})
		}

		if len(matches) == 0 {
			return "", fmt.Errorf("%w: no template matching %s", ErrNotFound, constants.TemplateRegex)
		}

		sort.Slice(matches, func(i, j int) bool {
			return matches[i].created > matches[j].created
		})

		return matches[0].id, nil
	})
}
