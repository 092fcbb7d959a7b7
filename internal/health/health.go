// Package health reports a single on-demand status snapshot: ledger size,
// registry size, and process uptime. It owns no state of its own — every
// field is computed from the ledger and registry at the moment of the call.
package health

import (
	"time"

	"github.com/apscustody/labcustody/internal/ledger"
	"github.com/apscustody/labcustody/internal/registry"
)

// Status is the snapshot returned by Check.
type Status struct {
	UptimeSeconds     int64 `json:"uptimeSeconds"`
	LedgerEventCount  int   `json:"ledgerEventCount"`
	RegistryCertCount int   `json:"registryCertCount"`
	RevokedCertCount  int   `json:"revokedCertCount"`
}

// Checker computes Status on demand from a ledger and a certificate
// registry.
type Checker struct {
	ledger    *ledger.Ledger
	registry  *registry.Registry
	startTime time.Time
}

// NewChecker returns a Checker whose uptime is measured from now.
func NewChecker(l *ledger.Ledger, reg *registry.Registry) *Checker {
	return &Checker{ledger: l, registry: reg, startTime: time.Now()}
}

// Check computes the current Status.
func (c *Checker) Check() (Status, error) {
	events, err := c.ledger.All()
	if err != nil {
		return Status{}, err
	}
	return Status{
		UptimeSeconds:     int64(time.Since(c.startTime).Seconds()),
		LedgerEventCount:  len(events),
		RegistryCertCount: c.registry.CertCount(),
		RevokedCertCount:  c.registry.RevokedCount(),
	}, nil
}
