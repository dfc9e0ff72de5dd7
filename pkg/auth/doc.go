// Package auth provides user accounts, token issuance and the bearer-token
// gate protecting the API. Tokens are signed JWTs carrying the user id and
// email; verification enforces signature, expiry, issuer and audience, and
// every failure mode yields the same uniform 401.
package auth
