// Copyright © by Jeff Foley 2017-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package resolve answers the registration question for candidate domains and
// gathers their A, AAAA, MX and NS records.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chiefgyk3d/typo-sniper/report"
	"github.com/miekg/dns"
)

// ErrUnregistered is returned by Lookup when the authoritative answer for the
// domain is NXDOMAIN.
var ErrUnregistered = errors.New("domain is not registered")

// DefaultServers are used when the configuration names no resolvers.
var DefaultServers = []string{"8.8.8.8:53", "1.1.1.1:53"}

// Resolver performs the DNS phase of a scan. It is safe for concurrent use.
type Resolver struct {
	servers []string
	client  *dns.Client
	retries int
	log     *slog.Logger
}

// New returns a Resolver that rotates across the provided servers. Servers
// given without a port are assumed to listen on 53.
func New(servers []string, timeout time.Duration, retries int, log *slog.Logger) *Resolver {
	if len(servers) == 0 {
		servers = DefaultServers
	}
	for i, s := range servers {
		if !strings.Contains(s, ":") {
			servers[i] = s + ":53"
		}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	if log == nil {
		log = slog.Default()
	}

	return &Resolver{
		servers: servers,
		client:  &dns.Client{Timeout: timeout},
		retries: retries,
		log:     log,
	}
}

// Lookup resolves the candidate domain. ErrUnregistered identifies names
// that returned NXDOMAIN or answered empty for every record type; any other
// error means the servers could not be reached after retries. A registered
// domain with failing secondary lookups still returns the records that were
// obtained.
func (r *Resolver) Lookup(ctx context.Context, domain string) (*report.DNSRecords, error) {
	resp, err := r.query(ctx, domain, dns.TypeA)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", domain, err)
	}
	if resp.Rcode == dns.RcodeNameError {
		return nil, ErrUnregistered
	}

	records := &report.DNSRecords{A: extract(resp, dns.TypeA)}
	for _, qtype := range []uint16{dns.TypeAAAA, dns.TypeMX, dns.TypeNS} {
		resp, err := r.query(ctx, domain, qtype)
		if err != nil {
			r.log.Warn("Partial DNS results for the domain",
				"domain", domain, "qtype", dns.TypeToString[qtype], "err", err)
			continue
		}
		switch qtype {
		case dns.TypeAAAA:
			records.AAAA = extract(resp, qtype)
		case dns.TypeMX:
			records.MX = extract(resp, qtype)
		case dns.TypeNS:
			records.NS = extract(resp, qtype)
		}
	}

	// A name that answers empty for every record type of interest is
	// treated the same as one that does not exist
	if !records.HasRecords() {
		return nil, ErrUnregistered
	}
	return records, nil
}

func (r *Resolver) query(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	var resp *dns.Msg
	attempt := func() error {
		var last error
		for _, server := range r.servers {
			in, _, err := r.client.ExchangeContext(ctx, msg, server)
			if err != nil {
				last = err
				continue
			}
			if in.Rcode == dns.RcodeServerFailure || in.Rcode == dns.RcodeRefused {
				last = fmt.Errorf("server %s answered %s", server, dns.RcodeToString[in.Rcode])
				continue
			}
			resp = in
			return nil
		}
		if last == nil {
			last = errors.New("no DNS servers available")
		}
		return last
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(r.retries)), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		return nil, err
	}
	return resp, nil
}

func extract(resp *dns.Msg, qtype uint16) []string {
	var values []string

	for _, rr := range resp.Answer {
		if rr.Header().Rrtype != qtype {
			continue
		}
		switch v := rr.(type) {
		case *dns.A:
			values = append(values, v.A.String())
		case *dns.AAAA:
			values = append(values, v.AAAA.String())
		case *dns.MX:
			values = append(values, strings.TrimSuffix(v.Mx, "."))
		case *dns.NS:
			values = append(values, strings.TrimSuffix(v.Ns, "."))
		}
	}
	return values
}
