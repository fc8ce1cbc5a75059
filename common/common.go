// Package common holds shared service identity and logging setup used by all
// binaries in this repository.
package common

// Version is the service version, overridden at build time via ldflags.
var Version = "dev"

// PackageName identifies this service in logs and metrics.
const PackageName = "smarttoken-provisioning"
