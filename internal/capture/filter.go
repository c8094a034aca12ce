package capture

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Resource is an outgoing request as seen by the session's network layer.
type Resource struct {
	URL  string
	Type string
	// Navigation is true for the top-level document request.
	Navigation bool
}

type Verdict int

const (
	Allow Verdict = iota
	Abort
)

func (v Verdict) String() string {
	if v == Abort {
		return "abort"
	}
	return "allow"
}

// Rule classifies a resource. Rules that have no opinion return Allow.
type Rule func(Resource) Verdict

// Filter evaluates rules in order; the first Abort wins.
type Filter []Rule

func (f Filter) Evaluate(r Resource) Verdict {
	if r.Navigation {
		return Allow
	}
	for _, rule := range f {
		if rule(r) == Abort {
			return Abort
		}
	}
	return Allow
}

func BlockResourceTypes(types ...string) Rule {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[strings.ToLower(t)] = struct{}{}
	}
	return func(r Resource) Verdict {
		if _, ok := set[strings.ToLower(r.Type)]; ok {
			return Abort
		}
		return Allow
	}
}

// BlockHosts aborts requests whose host is one of hosts or a subdomain of one.
func BlockHosts(hosts ...string) Rule {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), ".")] = struct{}{}
	}
	return func(r Resource) Verdict {
		u, err := url.Parse(r.URL)
		if err != nil {
			return Allow
		}
		host := strings.ToLower(u.Hostname())
		for host != "" {
			if _, ok := set[host]; ok {
				return Abort
			}
			i := strings.IndexByte(host, '.')
			if i < 0 {
				break
			}
			host = host[i+1:]
		}
		return Allow
	}
}

var DefaultAdHosts = []string{
	"doubleclick.net",
	"googlesyndication.com",
	"googleadservices.com",
	"google-analytics.com",
	"googletagmanager.com",
	"googletagservices.com",
	"adservice.google.com",
	"amazon-adsystem.com",
	"adnxs.com",
	"adsrvr.org",
	"criteo.com",
	"criteo.net",
	"taboola.com",
	"outbrain.com",
	"scorecardresearch.com",
	"quantserve.com",
	"moatads.com",
	"pubmatic.com",
	"rubiconproject.com",
	"openx.net",
	"casalemedia.com",
	"hotjar.com",
	"connect.facebook.net",
}

var DefaultBlockedTypes = []string{"media"}

// Blocklist is the on-disk form of the ad and tracker filter.
type Blocklist struct {
	Hosts         []string `yaml:"hosts"`
	ResourceTypes []string `yaml:"resourceTypes"`
}

func DefaultBlocklist() Blocklist {
	return Blocklist{
		Hosts:         append([]string(nil), DefaultAdHosts...),
		ResourceTypes: append([]string(nil), DefaultBlockedTypes...),
	}
}

// LoadBlocklist merges the YAML file at path into the default blocklist.
func LoadBlocklist(path string) (Blocklist, error) {
	b := DefaultBlocklist()
	if path == "" {
		return b, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Blocklist{}, fmt.Errorf("failed to read blocklist: %w", err)
	}

	var extra Blocklist
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return Blocklist{}, fmt.Errorf("failed to parse blocklist %s: %w", path, err)
	}
	b.Hosts = append(b.Hosts, extra.Hosts...)
	b.ResourceTypes = append(b.ResourceTypes, extra.ResourceTypes...)
	return b, nil
}

func (b Blocklist) Filter() Filter {
	return Filter{
		BlockResourceTypes(b.ResourceTypes...),
		BlockHosts(b.Hosts...),
	}
}
