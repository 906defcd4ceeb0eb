package geoip

import (
	"net"
	"net/netip"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/woozymasta/srcmaster/internal/protocol"
)

// usWestLongitude splits North America into the east and west regions.
const usWestLongitude = -100.0

// middleEast lists countries MaxMind places in Asia or Africa that belong to the Middle East region.
var middleEast = map[string]struct{}{
	"AE": {}, "BH": {}, "EG": {}, "IL": {}, "IQ": {}, "IR": {}, "JO": {}, "KW": {},
	"LB": {}, "OM": {}, "PS": {}, "QA": {}, "SA": {}, "SY": {}, "TR": {}, "YE": {},
}

// Provider wraps the GeoIP2 database reader and maps addresses to master server regions.
// It is safe for concurrent use and can swap its database while serving lookups.
type Provider struct {
	db   *geoip2.Reader
	mu   sync.RWMutex
	city bool // database carries coordinates
}

// Open initializes the GeoIP database reader from a specific file path.
func Open(path string) (*Provider, error) {
	p := &Provider{}
	if err := p.Reload(path); err != nil {
		return nil, err
	}

	return p, nil
}

// Reload replaces the database with the file at path.
func (p *Provider) Reload(path string) error {
	db, err := geoip2.Open(path)
	if err != nil {
		return err
	}

	p.mu.Lock()
	old := p.db
	p.db = db
	p.city = strings.Contains(db.Metadata().DatabaseType, "City")
	p.mu.Unlock()

	if old != nil {
		return old.Close()
	}

	return nil
}

// Close closes the underlying GeoIP database reader.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil

	return err
}

// CountryCode looks up the ISO country code (e.g., "US", "DE") of ip.
// It returns an empty string if the country cannot be determined.
func (p *Provider) CountryCode(ip netip.Addr) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.db == nil {
		return ""
	}
	record, err := p.db.Country(net.IP(ip.AsSlice()))
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}

// Region implements master.RegionResolver.
func (p *Provider) Region(ip netip.Addr) (protocol.Region, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.db == nil {
		return protocol.RegionAll, false
	}

	addr := net.IP(ip.AsSlice())
	if p.city {
		record, err := p.db.City(addr)
		if err != nil {
			return protocol.RegionAll, false
		}
		return RegionOf(record.Continent.Code, record.Country.IsoCode, record.Location.Longitude, true)
	}

	record, err := p.db.Country(addr)
	if err != nil {
		return protocol.RegionAll, false
	}

	return RegionOf(record.Continent.Code, record.Country.IsoCode, 0, false)
}

// RegionOf maps a continent and country code to a region. Longitude, when known, picks
// between US east and US west.
func RegionOf(continent, country string, longitude float64, hasLongitude bool) (protocol.Region, bool) {
	if _, ok := middleEast[country]; ok {
		return protocol.RegionMiddleEast, true
	}

	switch continent {
	case "NA":
		if hasLongitude && longitude < usWestLongitude {
			return protocol.RegionUSWest, true
		}
		return protocol.RegionUSEast, true
	case "SA":
		return protocol.RegionSouthAmerica, true
	case "EU":
		return protocol.RegionEurope, true
	case "AS":
		return protocol.RegionAsia, true
	case "OC":
		return protocol.RegionAustralia, true
	case "AF":
		return protocol.RegionAfrica, true
	default:
		return protocol.RegionAll, false
	}
}
