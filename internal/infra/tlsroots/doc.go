// Package tlsroots loads TLS material for both ends of the HTTP API.
//
// The server side uses CertReloader, which keeps the serving certificate in
// memory and swaps it when the PEM files change on disk. The client side
// uses ClientConfig to trust a private CA on top of the system roots.
package tlsroots
