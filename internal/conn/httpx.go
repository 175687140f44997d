package conn

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"

	"drover/internal/errors"
	"drover/internal/server"
)

// httpxTransport probes a host over HTTP or HTTPS. A response — any
// response — means the host is connected; 401/403 mean it rejected our
// credentials, everything else counts as authenticated. There is no
// remote shell here, so Exec always fails.
type httpxTransport struct {
	srv     server.Ref
	tlsOn   bool
	opts    Options
	client  *http.Client
	dialed  bool
	authed  bool
	baseURL string
}

func newHTTPX(opts Options, tlsOn bool) *httpxTransport {
	return &httpxTransport{srv: opts.Server, tlsOn: tlsOn, opts: opts}
}

// URL builds the probe URL from the server name, honoring an explicit
// scheme or port already present in the name.
func (t *httpxTransport) URL() string {
	name := t.srv.Name()
	if strings.Contains(name, "://") {
		return name
	}
	scheme := "http"
	if t.tlsOn {
		scheme = "https"
	}
	return scheme + "://" + name
}

func (t *httpxTransport) Connect(ctx context.Context) error {
	t.baseURL = t.URL()
	if t.client == nil {
		t.client = &http.Client{
			Timeout: t.opts.timeout(),
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL, nil)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Bad probe URL '%s'", t.baseURL),
			"Check the server name for this task.")
	}
	if t.opts.Creds.User != "" {
		req.SetBasicAuth(t.opts.Creds.User, t.opts.Creds.Password)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.dialed = false
		return errors.WrapWithCode(err, errors.ErrConn,
			fmt.Sprintf("Can't reach '%s'", t.baseURL),
			"Check the hostname and that the service is up.")
	}
	defer resp.Body.Close()

	t.dialed = true
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		t.authed = false
		return errors.New(errors.ErrAuth,
			fmt.Sprintf("'%s' rejected the request (%d)", t.baseURL, resp.StatusCode),
			"Check the user and password configured for this host.")
	default:
		t.authed = true
		return nil
	}
}

func (t *httpxTransport) Close() error {
	if t.client != nil {
		t.client.CloseIdleConnections()
	}
	t.dialed = false
	t.authed = false
	return nil
}

func (t *httpxTransport) IsConnected() bool     { return t.dialed }
func (t *httpxTransport) IsAuthenticated() bool { return t.authed }
func (t *httpxTransport) Raw() any              { return t.client }

func (t *httpxTransport) Exec(_ context.Context, _ string) (stdout, stderr []byte, exitCode int, err error) {
	return nil, nil, -1, errors.New(errors.ErrExec,
		"Commands can't run over an HTTP transport",
		"Use the openssh transport for tasks that execute commands.")
}
