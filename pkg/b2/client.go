// Package b2 is the public façade over the B2 transfer engine: it composes
// internal/account, internal/b2api, internal/session, internal/emerge,
// internal/download, and internal/syncfs into a single Client with
// object-oriented entry points for authorization, upload, download, and
// folder sync — grounded on original_source/b2sdk's B2Api (api.py), which
// plays the identical role over the same components in the Python
// library this was distilled from: one constructor that composes an
// authenticated transport, token source, and resolved identity.
package b2

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/cloudbin/b2sdk-go/internal/account"
	"github.com/cloudbin/b2sdk-go/internal/b2api"
	"github.com/cloudbin/b2sdk-go/internal/config"
	"github.com/cloudbin/b2sdk-go/internal/credfile"
	"github.com/cloudbin/b2sdk-go/internal/download"
	"github.com/cloudbin/b2sdk-go/internal/emerge"
	"github.com/cloudbin/b2sdk-go/internal/session"
)

// DefaultRealm is the production B2 API realm, used when Options.Realm is
// empty.
const DefaultRealm = "https://api.backblazeb2.com"

// Options configures a Client. KeyID and ApplicationKey are required unless
// AccountInfo already holds valid auth state (e.g. a SQLiteInfo reopened
// from a prior run).
type Options struct {
	KeyID          string
	ApplicationKey string
	Realm          string // defaults to DefaultRealm

	// AccountInfo overrides the default account.Info store. When nil, a
	// MemoryInfo is used unless StatePath is set, in which case a
	// SQLiteInfo is opened there.
	AccountInfo account.Info
	StatePath   string

	Config     *config.Config // defaults to config.DefaultConfig()
	HTTPClient *http.Client   // nil: b2api.NewClient's own client, dialing with b2api.ConnectTimeout
	Logger     *slog.Logger   // defaults to slog.Default()
}

// Client is the authenticated, ready-to-use B2 facade. All methods are
// safe for concurrent use.
type Client struct {
	raw     *b2api.Client
	info    account.Info
	session *session.RealSession
	cfg     *config.Config
	log     *slog.Logger

	planner  *emerge.Planner
	uploader *emerge.UploadManager
	executor *emerge.Executor
	dl       *download.Manager
}

// NewClient authorizes against opts.Realm (or DefaultRealm) with
// opts.KeyID/opts.ApplicationKey and returns a ready-to-use Client. Mirrors
// b2sdk's B2Api.__init__ + authorize_account, folded into one call since
// a static application key needs no separate device-code login step.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Realm == "" {
		opts.Realm = DefaultRealm
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}

	info, err := resolveAccountInfo(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("b2: resolving account info store: %w", err)
	}

	raw := b2api.NewClient(opts.HTTPClient, opts.Logger)

	authorize := func(ctx context.Context) (account.State, error) {
		return authorizeAccount(ctx, raw, opts.Realm, opts.KeyID, opts.ApplicationKey)
	}

	state, err := authorize(ctx)
	if err != nil {
		return nil, fmt.Errorf("b2: authorizing account: %w", err)
	}

	if err := info.SetAuthData(state); err != nil {
		return nil, fmt.Errorf("b2: storing auth data: %w", err)
	}

	pool := account.NewUploadURLPool()
	sess := session.NewRealSession(raw, info, pool, authorize, opts.Logger)

	return &Client{
		raw:      raw,
		info:     info,
		session:  sess,
		cfg:      opts.Config,
		log:      opts.Logger,
		planner:  emerge.NewPlanner(opts.Logger),
		uploader: emerge.NewUploadManager(opts.Logger),
		executor: emerge.NewExecutor(opts.Logger),
		dl:       download.NewManager(opts.Logger, opts.Config.Transfers.ToDownloadConfig(opts.Config.Safety)),
	}, nil
}

// NewClientFromCredentialFile loads saved credentials via internal/credfile
// (its atomic-write/0600 persistence) and authorizes with them, rather
// than requiring the caller to pass a raw application key on every run.
func NewClientFromCredentialFile(ctx context.Context, path string, opts Options) (*Client, error) {
	f, err := credfile.Load(path)
	if err != nil {
		return nil, fmt.Errorf("b2: loading credential file: %w", err)
	}

	if f == nil {
		return nil, fmt.Errorf("b2: no credential file at %s", path)
	}

	opts.KeyID = f.KeyID
	opts.ApplicationKey = f.ApplicationKey

	if opts.Realm == "" {
		opts.Realm = f.Realm
	}

	return NewClient(ctx, opts)
}

func resolveAccountInfo(ctx context.Context, opts Options) (account.Info, error) {
	if opts.AccountInfo != nil {
		return opts.AccountInfo, nil
	}

	if opts.StatePath == "" {
		return account.NewMemoryInfo(), nil
	}

	return account.OpenSQLiteInfo(ctx, opts.StatePath, opts.Logger)
}

// authorizeAccount calls b2_authorize_account and maps the response into
// account.State, carrying the realm through since the response itself
// doesn't echo it back.
func authorizeAccount(ctx context.Context, raw *b2api.Client, realm, keyID, applicationKey string) (account.State, error) {
	resp, err := raw.AuthorizeAccount(ctx, realm, keyID, applicationKey)
	if err != nil {
		return account.State{}, err
	}

	return account.State{
		AccountID:           resp.AccountID,
		AuthToken:           resp.AuthorizationToken,
		APIURL:              resp.APIInfo.StorageAPI.APIURL,
		DownloadURL:         resp.APIInfo.StorageAPI.DownloadURL,
		RecommendedPartSize: resp.APIInfo.StorageAPI.RecommendedPartSize,
		MinPartSize:         resp.APIInfo.StorageAPI.AbsoluteMinimumPartSize,
		Realm:               realm,
		Allowed: account.Allowed{
			Capabilities: resp.Allowed.Capabilities,
			BucketID:     resp.Allowed.BucketID,
			BucketName:   resp.Allowed.BucketName,
			NamePrefix:   resp.Allowed.NamePrefix,
		},
	}, nil
}

// Close releases resources held by the Client's account.Info store (a no-op
// for MemoryInfo, closes the database for a SQLiteInfo).
func (c *Client) Close() error {
	if closer, ok := c.info.(interface{ Close() error }); ok {
		return closer.Close()
	}

	return nil
}

// Session exposes the underlying session.Operations for callers that need
// direct wire-level access beyond this façade's high-level methods.
func (c *Client) Session() *session.RealSession { return c.session }

// AccountID returns the authorized account's id.
func (c *Client) AccountID() (string, error) { return c.info.AccountID() }
