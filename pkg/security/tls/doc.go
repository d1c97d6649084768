/*
Package tls serves the decision service over HTTPS.

The certificate pair is read by a CertificateReloader, which re-reads the
files whenever their modification time moves forward, so renewed
certificates are served without a restart:

	reloader := tls.NewCertificateReloader(cfg.CertFile, cfg.KeyFile, cfg.ReloadInterval, logger)
	if err := reloader.Start(ctx); err != nil {
		return err
	}
	tlsConfig, err := tls.NewServerConfig(cfg, reloader)

# Client certificates

Setting client_ca_file asks clients for a certificate signed by that CA.
With identity_source set, IdentityMiddleware names the tenant of each request
after a field of the client certificate:

	subject.CN   Common Name
	subject.OU   first Organizational Unit
	subject.O    first Organization
	SAN          first DNS Subject Alternative Name
*/
package tls
