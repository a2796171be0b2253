// Package auth supplies request credentials for the anfrage client.
//
// A Credentials implementation produces the current token and knows how
// to attach it to an outgoing request: standard endpoints get
// Authorization: Bearer, Azure endpoints get the api-key header. A
// JWT-aware source inspects bearer-token expiry (without verifying the
// signature, which is the server's job) and refreshes through its
// supplier before the token lapses.
package auth
