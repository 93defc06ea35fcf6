// Package version exposes build metadata of the keyvault binary.
//
// Values are injected with ldflags:
//
//	go build -ldflags "\
//	  -X github.com/ncobase/keyvault/version.Version=1.2.3 \
//	  -X github.com/ncobase/keyvault/version.Branch=main \
//	  -X github.com/ncobase/keyvault/version.Revision=abc123 \
//	  -X 'github.com/ncobase/keyvault/version.BuiltAt=$(date)'"
//
// Builds without ldflags fall back to the VCS stamp the go toolchain embeds.
package version
