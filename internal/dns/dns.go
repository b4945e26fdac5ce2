// Package dns resolves broker hostnames with a public-DNS fallback so a
// broken local resolver does not take the call path down with it.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// publicDNS servers are raced when the system resolver fails.
var publicDNS = []string{
	"1.1.1.1",                // Cloudflare
	"1.0.0.1",                // Cloudflare
	"[2606:4700:4700::1111]", // Cloudflare
	"8.8.8.8",                // Google
	"8.8.4.4",                // Google
	"[2001:4860:4860::8888]", // Google
	"9.9.9.9",                // Quad9
	"149.112.112.112",        // Quad9
}

// Lookup resolves a hostname to an IP address, preferring the system
// resolver and falling back to racing public DNS providers.
func Lookup(address string) (string, error) {
	if ip := net.ParseIP(address); ip != nil {
		return address, nil
	}

	ip, err := localLookup(address)
	if err == nil && ip != "" {
		return ip, nil
	}
	return raceLookup(address)
}

func localLookup(address string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	r := &net.Resolver{}
	ips, err := r.LookupHost(ctx, address)
	if err != nil {
		return "", err
	}
	return pick(ips)
}

// raceLookup queries all public servers concurrently and returns the first
// successful answer.
func raceLookup(address string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	results := make(chan result, len(publicDNS))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, server := range publicDNS {
		go func(server string) {
			ip, err := remoteLookup(ctx, address, server)
			results <- result{ip: ip, err: err}
		}(server)
	}

	for range publicDNS {
		select {
		case res := <-results:
			if res.err == nil && res.ip != "" {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("public DNS race timed out resolving %s", address)
		}
	}
	return "", fmt.Errorf("failed to resolve %s: all public DNS servers failed", address)
}

func remoteLookup(ctx context.Context, address, server string) (string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := new(net.Dialer)
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}

	ips, err := r.LookupHost(ctx, address)
	if err != nil {
		return "", err
	}
	return pick(ips)
}

// pick prefers IPv4 answers.
func pick(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errors.New("no IP addresses found")
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
