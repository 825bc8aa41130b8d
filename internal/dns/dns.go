// Package dns resolves the signald host with a fallback to public resolvers,
// so the client still connects when the local DNS configuration is broken.
package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

var publicDNS = []string{
	"1.1.1.1",         // Cloudflare
	"1.0.0.1",         // Cloudflare
	"8.8.8.8",         // Google
	"8.8.4.4",         // Google
	"9.9.9.9",         // Quad9
	"149.112.112.112", // Quad9
}

// Lookup resolves a hostname, trying the system resolver first and racing
// the public resolvers when it fails.
func Lookup(host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}
	if ip, err := systemLookup(host); err == nil {
		return ip, nil
	}
	return raceLookup(host)
}

func systemLookup(host string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	ips, err := (&net.Resolver{}).LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pickIPv4(ips)
}

// raceLookup queries every public resolver concurrently and returns the
// first success.
func raceLookup(host string) (string, error) {
	type result struct {
		ip  string
		err error
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	results := make(chan result, len(publicDNS))
	for _, server := range publicDNS {
		go func(server string) {
			ip, err := serverLookup(ctx, host, server)
			results <- result{ip, err}
		}(server)
	}

	for range publicDNS {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: public DNS race timed out", host)
		}
	}
	return "", fmt.Errorf("resolve %s: all public DNS servers failed", host)
}

func serverLookup(ctx context.Context, host, server string) (string, error) {
	r := &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := new(net.Dialer)
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	return pickIPv4(ips)
}

func pickIPv4(ips []string) (string, error) {
	if len(ips) == 0 {
		return "", errors.New("no addresses returned")
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
