///////////////////////////////////////////////////////////////////////////////////////////////////
// Floxy Entrypoint - mdns.go
// Copyright (c) 2025 The Floxy Development Team
// SPDX-License-Identifier: MIT
///////////////////////////////////////////////////////////////////////////////////////////////////

// Floxy Entrypoint
//
//nolint:godoclint,nolintlint
package main

///////////////////////////////////////////////////////////////////////////////////////////////////

import (
	"fmt"
	"log"
	"net"
	"os"
	"strings"

	"github.com/hashicorp/mdns"
)

///////////////////////////////////////////////////////////////////////////////////////////////////

var (
	mdnsService string
	mdnsPort    int
)

///////////////////////////////////////////////////////////////////////////////////////////////////

type mdnsAnnouncer struct {
	servers []*mdns.Server
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func interfaceIPv4s(iface *net.Interface) []net.IP {
	addrs, err := iface.Addrs()
	if err != nil {
		log.Printf("%sError getting addresses for interface %s: %s",
			warnPrefix(), iface.Name, err)

		return nil
	}

	var ips []net.IP

	for _, addr := range addrs {
		var ip net.IP

		switch v := addr.(type) {
		case *net.IPNet:
			ip = v.IP

		case *net.IPAddr:
			ip = v.IP
		}

		if ip != nil && !ip.IsLoopback() && ip.To4() != nil {
			ips = append(ips, ip)
		}
	}

	return ips
}

///////////////////////////////////////////////////////////////////////////////////////////////////

// announceMDNS advertises the proxied HTTP port on every multicast-capable interface.
// Failures are logged; the proxy is fully functional without an announcement.
func announceMDNS(service string, port int, configPath string) *mdnsAnnouncer {
	a := &mdnsAnnouncer{}

	hostname, err := os.Hostname()
	if err != nil {
		log.Printf("%sError getting hostname for mDNS: %v - using default of \"floxy\"",
			toolPrefix(), err)
		hostname = "floxy"
	}

	if !strings.HasSuffix(hostname, ".") {
		hostname += "."
	}

	interfaces, err := net.Interfaces()
	if err != nil {
		log.Printf("%sError enumerating network interfaces for mDNS: %s",
			warnPrefix(), err)

		return a
	}

	txt := []string{
		"product=floxy",
		"config=" + configPath,
	}

	for i := range interfaces {
		iface := &interfaces[i]

		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 ||
			iface.Flags&net.FlagMulticast == 0 {
			continue
		}

		ips := interfaceIPv4s(iface)
		if len(ips) == 0 {
			continue
		}

		zone, err := mdns.NewMDNSService(
			fmt.Sprintf("floxy-%d", port), service, "local.", hostname, port, ips, txt)
		if err != nil {
			log.Printf("%sError creating mDNS service for interface %s: %s",
				alertPrefix(), iface.Name, err)

			continue
		}

		server, err := mdns.NewServer(&mdns.Config{Zone: zone, Iface: iface})
		if err != nil {
			log.Printf("%sError creating mDNS server for interface %s: %s",
				alertPrefix(), iface.Name, err)

			continue
		}

		log.Printf("Announcing %s port %d via mDNS on %s",
			service, port, iface.Name)

		a.servers = append(a.servers, server)
	}

	if len(a.servers) == 0 {
		log.Printf("%sNo suitable interfaces found for mDNS announcement.",
			warnPrefix())
	}

	return a
}

///////////////////////////////////////////////////////////////////////////////////////////////////

func (a *mdnsAnnouncer) Close() {
	for _, s := range a.servers {
		if err := s.Shutdown(); err != nil {
			log.Printf("%sError shutting down mDNS server: %v",
				warnPrefix(), err)
		}
	}

	a.servers = nil
}

///////////////////////////////////////////////////////////////////////////////////////////////////
// vim: set ft=go noexpandtab tabstop=4 cc=100 :
///////////////////////////////////////////////////////////////////////////////////////////////////
