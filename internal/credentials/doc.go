// Package credentials turns configured Cloud Run accounts into
// authenticated named credentials and keeps them current.
//
// The pipeline is Parser (one account) -> Loader (all accounts, one
// Snapshot) -> Poller (scheduled and on-demand cycles) -> Repository (the
// published Snapshot). An account that fails to parse is left out of the
// snapshot; a cycle that cannot list accounts at all leaves the previous
// snapshot in place.
package credentials
