// Package turnstile assembles a node from a config.Config: it loads or creates
// the secret key, reads the bootstrap peers, opens the membership database,
// builds the admission policy and starts the transport, the node and the HTTP
// service.
package turnstile
