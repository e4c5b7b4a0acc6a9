// Package secret provides argon2id hashing for user secrets.
//
// Hashes are produced in PHC string format with cost parameters embedded.
// Verification is constant time. Callers that want to migrate stored hashes
// to stronger costs can consult NeedsRehash on successful verification.
package secret
