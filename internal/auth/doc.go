// Package auth verifies the bearer tokens presented to the HTTP API.
//
// Tokens are HS256 JWTs issued by an external login service. The subject
// (or, for tokens from older issuers, the userId claim) is the owner id that
// scopes every device lookup. Roles are coarse: user for household members,
// admin for operators who may also read runtime metrics.
package auth
