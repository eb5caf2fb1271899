package business

import (
	"context"
	"fmt"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/guilherme-hl1ma/project-library-oauth/internal/api"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/authserver"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/authui"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/business/server"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/clientapp"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/config"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/flow"
	flowmemory "github.com/guilherme-hl1ma/project-library-oauth/internal/flow/memory"
	flowvalkey "github.com/guilherme-hl1ma/project-library-oauth/internal/flow/valkey"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/gate"
	"github.com/guilherme-hl1ma/project-library-oauth/internal/projects"
)

// ClientAppMain starts the relying-party web application: the authorization
// entry and callback routes, the gated project pages and the logout routes.
func ClientAppMain(ctx context.Context, cfg *config.Config) error {
	store, closeFn, err := initFlowStore(cfg)
	if err != nil {
		return fmt.Errorf("initialising the flow store: %w", err)
	}

	defer closeFn()

	authServer := authserver.NewClient(cfg.AuthServer, cfg.Client.ClientID, cfg.Client.RedirectURI)

	manager, err := flow.NewManager(&cfg.Client, authServer, store)
	if err != nil {
		return fmt.Errorf("creating flow manager: %w", err)
	}

	projectsClient := projects.NewClient(api.NewClient(cfg.Client.ResourceServerURL, manager))
	sessionGate := gate.New(&cfg.Client, manager, authServer, "/oauth/authorize")
	handler := clientapp.NewHandler(&cfg.Client, manager, projectsClient, sessionGate)

	slogctx.Info(ctx, "Starting the client application server")

	return server.StartHTTPServer(ctx, cfg, handler.Routes())
}

// AuthUIMain starts the login and consent front-end served on the
// authorization server's origin.
func AuthUIMain(ctx context.Context, cfg *config.Config) error {
	authServer := authserver.NewClient(cfg.AuthServer, cfg.Client.ClientID, cfg.Client.RedirectURI)

	handler, err := authui.NewHandler(&cfg.AuthUI, cfg.AuthServer.IssuerURL, authServer)
	if err != nil {
		return fmt.Errorf("creating the auth UI handler: %w", err)
	}

	slogctx.Info(ctx, "Starting the authorization UI server")

	return server.StartHTTPServer(ctx, cfg, handler.Routes())
}

// initFlowStore selects the flow repository: valkey when configured, the
// in-process TTL store otherwise. The in-process store does not survive a
// restart and cannot be shared between replicas.
func initFlowStore(cfg *config.Config) (_ flow.Repository, closeFn func(), _ error) {
	if !cfg.ValKey.Enabled {
		return flowmemory.NewRepository(), func() {}, nil
	}

	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyClient, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return flowvalkey.NewRepository(valkeyClient, cfg.ValKey.Prefix), valkeyClient.Close, nil
}
