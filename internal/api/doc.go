// Package api exposes study commitment and disclosure proofs over HTTP.
//
// Overview:
//   - POST /api/v1/studies commits a study protocol and stores it under its commitment
//   - POST /api/v1/proofs generates a proof with a server-side salt
//   - POST /api/v1/proofs/verify checks any proof and always answers 200 for decodable input
//   - GET endpoints look up stored studies and proofs
//
// Security Model:
//   - Raw statistics are only held for the duration of a proof request and never stored
//   - Salts are generated per request and never returned
//   - Proof generation is rate limited per client
package api
