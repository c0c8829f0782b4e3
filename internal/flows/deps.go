package flows

// Deps groups flow dependency sets. The root engine builds this once in
// Build and delegates request methods to the matching flow.
type Deps struct {
	Authorize AuthorizeDeps
	Recovery  RecoveryDeps
}
