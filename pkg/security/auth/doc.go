/*
Package auth authenticates callers of the decision service by API key.

Keys come from server.auth in the configuration. Each key may name the
tenant it is admitted against, so a caller cannot pick someone else's
budget by setting the tenant header:

	validator := auth.NewAPIKeyValidator(cfg.Server.Auth.Keys)
	handler = auth.Middleware(validator, cfg.Server.Auth.Header, logger)(handler)

Keys without a tenant only authenticate; the tenant is then taken from the
request as usual. Disabled keys are rejected like unknown ones, with 401.

Update swaps the key set in place, so a configuration reload takes effect
without restarting the server.
*/
package auth
