package security

import (
	"context"
	"crypto/tls"
	"log/slog"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/floorscore/floorscore/agent/internal/config"
)

// ExpiringDays is the remaining lifetime at which a certificate is reported
// as expiring.
const ExpiringDays = 30

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// CertStatus describes the leaf certificate served by an endpoint.
type CertStatus struct {
	Name     string // station ID or "server"
	Endpoint string
	AuthType string
	Status   string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
	Err      error
}

// Target is one endpoint to inspect.
type Target struct {
	Name     string
	Endpoint string
	Auth     config.AuthConfig
	TLS      config.TLSConfig
}

// Targets lists the server and every station of cfg.
func Targets(cfg config.AgentConfig) []Target {
	out := []Target{{Name: "server", Endpoint: cfg.ServerEndpoint, Auth: cfg.ServerAuth}}
	for _, st := range cfg.Stations {
		out = append(out, Target{Name: st.ID, Endpoint: st.Endpoint, Auth: st.Auth, TLS: st.TLS})
	}
	return out
}

// Check dials the TLS endpoint of t and returns a CertStatus describing the
// leaf certificate.
//
// Returns nil for non-HTTPS endpoints. Uses a 10-second dial timeout so a
// slow host does not block startup indefinitely.
func Check(ctx context.Context, t Target, now time.Time) *CertStatus {
	u, err := url.Parse(t.Endpoint)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Name: t.Name, Endpoint: t.Endpoint, AuthType: t.Auth.Mode}
	if cs.AuthType == "" {
		cs.AuthType = "none"
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: t.TLS.InsecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = StatusUnreachable
		cs.Err = err
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peerCerts[0]
	daysLeft := leaf.NotAfter.Sub(now).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))
	cs.Status = statusFor(daysLeft)
	return cs
}

func statusFor(daysLeft float64) string {
	switch {
	case daysLeft <= 0:
		return StatusExpired
	case daysLeft <= ExpiringDays:
		return StatusExpiring
	default:
		return StatusValid
	}
}

// CheckAll inspects every target and logs certificates that need attention.
// It returns the statuses of the HTTPS targets.
func CheckAll(ctx context.Context, targets []Target) []*CertStatus {
	now := time.Now()
	var out []*CertStatus
	for _, t := range targets {
		cs := Check(ctx, t, now)
		if cs == nil {
			continue
		}
		out = append(out, cs)
		switch cs.Status {
		case StatusValid:
			slog.Debug("security: certificate valid", "name", cs.Name, "days_left", cs.DaysLeft)
		case StatusUnreachable:
			slog.Warn("security: tls endpoint unreachable", "name", cs.Name, "endpoint", cs.Endpoint, "err", cs.Err)
		default:
			slog.Warn("security: certificate needs renewal",
				"name", cs.Name, "endpoint", cs.Endpoint, "status", cs.Status,
				"not_after", cs.NotAfter, "issuer", cs.Issuer)
		}
	}
	return out
}
