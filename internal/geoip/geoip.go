// Package geoip annotates vote-source addresses with their country. The
// annotation feeds logs only; it never touches the decoded vote.
package geoip

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Resolver wraps a MaxMind country database. It is opened once at startup
// and read-only afterwards; geoip2.Reader is safe for concurrent lookups.
type Resolver struct {
	reader *geoip2.Reader
}

// Open opens a MaxMind database file.
func Open(path string) (*Resolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open GeoIP database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// Close closes the database.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}

// Country returns the ISO country code for a source IP. Lookups are
// best-effort: any failure, a nil resolver included, yields an empty code
// so connection handling never depends on the database.
func (r *Resolver) Country(ipStr string) string {
	if r == nil || r.reader == nil {
		return ""
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	record, err := r.reader.Country(ip)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}
