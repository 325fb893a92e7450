/*
Package security groups the transport and credential concerns of the
broker: TLS for the listener, API key authentication for clients, and
secret resolution for configuration files.

# TLS

Build the listener configuration from the config file settings:

	tlsConfig, reloader, err := tls.Build(cfg.Security.TLS)
	if err != nil {
		return err
	}
	if reloader != nil {
		go reloader.Watch(ctx)
	}

# API Key Authentication

Wrap the client-facing routes with Bearer key validation; the resolved
principal rides the request context into usage accounting:

	validator := auth.NewAPIKeyValidator(cfg.Auth.APIKeys)
	mux.Handle("/v1/", auth.NewMiddleware(validator).Handle(apiRoutes))

# Secrets

Configuration files reference secrets as ${secret:name}; the config
loader resolves them from the environment or a mounted secrets
directory before parsing. See package secrets.
*/
package security
