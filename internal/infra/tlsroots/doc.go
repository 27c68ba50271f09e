// Package tlsroots manages TLS material for TabVault.
//
// The server side uses a Keypair to serve HTTPS: the certificate and
// key are reloaded from disk when they change, so rotation never needs
// a restart. The CLI side uses a Pool to trust the self-signed
// certificates that local deployments typically run with.
package tlsroots
