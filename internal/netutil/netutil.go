// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package netutil normalizes machine addresses and picks the address the LAN
// server announces to the machine.
package netutil

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrNoAnnounceAddr is returned when no usable interface address exists.
var ErrNoAnnounceAddr = errors.New("no routable interface address")

// NormalizeAuthority parses a machine address that may be a bare host,
// host:port or a full http(s) URL. It returns the scheme (defaultScheme when
// the input carries none) and the authority in host[:port] form.
func NormalizeAuthority(s, defaultScheme string) (scheme, authority string, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", fmt.Errorf("empty input")
	}
	if defaultScheme == "" {
		defaultScheme = "https"
	}
	if !strings.Contains(s, "://") {
		s = defaultScheme + "://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse authority: %w", err)
	}
	scheme = strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.User != nil {
		return "", "", fmt.Errorf("credentials not allowed")
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", fmt.Errorf("path not allowed: %s", u.Path)
	}
	host := u.Hostname()
	if host == "" {
		return "", "", fmt.Errorf("empty host")
	}
	if port := u.Port(); port != "" {
		return scheme, net.JoinHostPort(host, port), nil
	}
	if strings.Contains(host, ":") {
		return scheme, "[" + host + "]", nil
	}
	return scheme, strings.ToLower(host), nil
}

// NetworkIPs lists addresses of up interfaces, skipping loopback and
// link-local ranges.
func NetworkIPs() ([]net.IP, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("get network interfaces: %w", err)
	}

	var ips []net.IP
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if usable(ip) {
				ips = append(ips, ip)
			}
		}
	}
	return ips, nil
}

func usable(ip net.IP) bool {
	if ip == nil || ip.IsLoopback() || ip.IsUnspecified() {
		return false
	}
	return !ip.IsLinkLocalUnicast() && !ip.IsLinkLocalMulticast()
}

// AnnounceIP returns configured unless it is empty or a wildcard, in which
// case the first IPv4 address from candidates is used. The machine only
// accepts IPv4 in local_reg.
func AnnounceIP(configured string, candidates func() ([]net.IP, error)) (string, error) {
	configured = strings.TrimSpace(configured)
	if ip := net.ParseIP(configured); ip != nil && !ip.IsUnspecified() {
		return ip.String(), nil
	}
	if configured != "" && net.ParseIP(configured) == nil {
		return "", fmt.Errorf("invalid announce address %q", configured)
	}
	if candidates == nil {
		candidates = NetworkIPs
	}
	ips, err := candidates()
	if err != nil {
		return "", err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil && usable(v4) {
			return v4.String(), nil
		}
	}
	return "", ErrNoAnnounceAddr
}
