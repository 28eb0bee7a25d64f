// Package verify implements the session lifecycle core of livecheck.
//
// A session owns at most one Artifact (a reference image plus its matcher
// template) and at most one Run (a bounded verification attempt). The
// Registry serializes work per session, the ArtifactRegistry keeps artifacts
// and their TTL index consistent, the Sweeper reclaims expired artifacts in
// the background, and the Engine turns one video frame into an Outcome.
//
// Face matching, face location, liveness and image decoding are consumed
// through the interfaces in capabilities.go; transport lives elsewhere.
package verify
