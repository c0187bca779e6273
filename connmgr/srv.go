package connmgr

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"github.com/ruteri/cdsi-client/interfaces"
)

// SRVName returns the SRV owner name queried for a route domain.
func SRVName(domain string) string {
	return dns.Fqdn("_cdsi._tcp." + strings.TrimSuffix(domain, "."))
}

// resolveRoutes queries the SRV records of domain and returns them as routes.
// A name without records yields no routes.
func resolveRoutes(ctx context.Context, resolver, scheme, domain string) ([]interfaces.Route, error) {
	m1 := new(dns.Msg)
	m1.SetQuestion(SRVName(domain), dns.TypeSRV)
	m1.RecursionDesired = true

	c := new(dns.Client)
	in, _, err := c.ExchangeContext(ctx, m1, resolver)
	if err != nil {
		return nil, fmt.Errorf("SRV query for %s failed: %w", domain, err)
	}
	if in.Rcode != dns.RcodeSuccess && in.Rcode != dns.RcodeNameError {
		return nil, fmt.Errorf("SRV query for %s failed: %s", domain, dns.RcodeToString[in.Rcode])
	}

	var records []*dns.SRV
	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			records = append(records, srv)
		}
	}

	return routesFromSRV(scheme, records), nil
}

// routesFromSRV orders records by ascending priority, then descending weight.
// A target of "." means the service is not offered and is skipped.
func routesFromSRV(scheme string, records []*dns.SRV) []interfaces.Route {
	sorted := make([]*dns.SRV, 0, len(records))
	for _, srv := range records {
		if srv.Target == "." {
			continue
		}
		sorted = append(sorted, srv)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].Weight > sorted[j].Weight
	})

	routes := make([]interfaces.Route, 0, len(sorted))
	for _, srv := range sorted {
		host := strings.TrimSuffix(srv.Target, ".")
		routes = append(routes, interfaces.Route{
			BaseURL:  fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, strconv.Itoa(int(srv.Port)))),
			Priority: srv.Priority,
			Weight:   srv.Weight,
		})
	}
	return routes
}
