package scraper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/floorscore/floorscore/agent/internal/config"
)

const (
	defaultScrapeTimeout = 10 * time.Second

	// maxExpositionBytes caps how much of a metrics response is read.
	maxExpositionBytes = 8 << 20
)

// acceptHeader prefers the delimited protobuf format and falls back to text.
var acceptHeader = string(expfmt.NewFormat(expfmt.TypeProtoDelim)) + ";q=0.7," +
	string(expfmt.NewFormat(expfmt.TypeTextPlain)) + ";q=0.3"

// NewHTTPClient builds the client used for one station, or for the server
// when the shipper calls it. Credentials come from auth and are attached to
// every request.
func NewHTTPClient(auth config.AuthConfig, tlsOpts config.TLSConfig, timeout time.Duration) (*http.Client, error) {
	tlsCfg, err := clientTLS(auth, tlsOpts)
	if err != nil {
		return nil, err
	}
	base := &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment}
	return &http.Client{
		Transport: authTransport{base: base, auth: auth},
		Timeout:   timeout,
	}, nil
}

// clientTLS loads the client certificate for mtls and, for any mode, a custom
// CA bundle when one is configured.
func clientTLS(auth config.AuthConfig, opts config.TLSConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: opts.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	if auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	if auth.CAFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(auth.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no valid certs found in ca file %q", auth.CAFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}

// authTransport attaches credentials to outgoing requests.
type authTransport struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	mode := t.auth.Mode
	if mode == "" || mode == "none" || mode == "mtls" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	switch mode {
	case "apikey":
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// fetchMetrics scrapes url and returns the families named in want. Other
// families in the exposition are skipped.
func fetchMetrics(ctx context.Context, client *http.Client, url string, want ...string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	body := io.LimitReader(resp.Body, maxExpositionBytes)
	return decodeMetrics(body, expfmt.ResponseFormat(resp.Header), want)
}

// decodeMetrics reads families from r in the given format. An empty want
// keeps every family.
func decodeMetrics(r io.Reader, format expfmt.Format, want []string) (map[string]*dto.MetricFamily, error) {
	dec := expfmt.NewDecoder(r, format)
	out := make(map[string]*dto.MetricFamily)
	for {
		mf := &dto.MetricFamily{}
		err := dec.Decode(mf)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode metrics (%s): %w", format, err)
		}
		if len(want) == 0 || slices.Contains(want, mf.GetName()) {
			out[mf.GetName()] = mf
		}
	}
}

// sumMatching adds up every counter, gauge or untyped sample in mf carrying
// all labels in match. A nil family sums to 0.
func sumMatching(mf *dto.MetricFamily, match map[string]string) float64 {
	var total float64
	for _, m := range mf.GetMetric() {
		if !hasLabels(m, match) {
			continue
		}
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func hasLabels(m *dto.Metric, match map[string]string) bool {
	if len(match) == 0 {
		return true
	}
	have := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		have[lp.GetName()] = lp.GetValue()
	}
	for name, want := range match {
		if v, ok := have[name]; !ok || v != want {
			return false
		}
	}
	return true
}
