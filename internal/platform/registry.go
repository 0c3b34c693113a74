package platform

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/xkilldash9x/doorknock-cli/api/schemas"
)

// Registry resolves listing URLs to their portal descriptors.
type Registry struct {
	byHost map[string]*Site
}

// NewRegistry indexes the given sites by hostname. Later sites win on
// host collisions.
func NewRegistry(sites ...*Site) *Registry {
	r := &Registry{byHost: make(map[string]*Site)}
	for _, site := range sites {
		for _, host := range site.Hosts {
			r.byHost[strings.ToLower(host)] = site
		}
	}
	return r
}

// DefaultRegistry carries every supported portal.
func DefaultRegistry() *Registry {
	return NewRegistry(Willhaben(), Immoscout(), DerStandard(), WGGesucht())
}

// Resolve parses rawURL and returns the owning site plus the listing
// identity derived from it. Unknown hosts and malformed URLs are
// errors, not crashes mid-run.
func (r *Registry) Resolve(rawURL string) (*Site, schemas.Listing, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, schemas.Listing{}, fmt.Errorf("parse listing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, schemas.Listing{}, fmt.Errorf("listing url %q: unsupported scheme %q", rawURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	site, ok := r.byHost[host]
	if !ok {
		return nil, schemas.Listing{}, fmt.Errorf("%w: %s", ErrUnknownPlatform, host)
	}
	listing, err := site.Listing(u)
	if err != nil {
		return nil, schemas.Listing{}, fmt.Errorf("%s: %w", site.Name, err)
	}
	return site, listing, nil
}

// Site returns the descriptor registered under the given platform name.
func (r *Registry) Site(name string) (*Site, bool) {
	for _, site := range r.byHost {
		if site.Name == name {
			return site, true
		}
	}
	return nil, false
}

// Names lists the registered platforms in sorted order.
func (r *Registry) Names() []string {
	seen := make(map[string]struct{}, len(r.byHost))
	names := make([]string, 0, len(r.byHost))
	for _, site := range r.byHost {
		if _, dup := seen[site.Name]; dup {
			continue
		}
		seen[site.Name] = struct{}{}
		names = append(names, site.Name)
	}
	sort.Strings(names)
	return names
}
