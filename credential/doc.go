// Package credential hashes replacement credentials set through account
// recovery. Hashes are Argon2id PHC strings so that the identity provider
// that owns login can verify them with any conforming library.
package credential
