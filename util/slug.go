// Package util holds small helpers shared by the domain services.
package util

import (
	"github.com/gosimple/slug"
	"github.com/ncobase/keyvault/nanoid"
)

// Slug makes a url-safe slug from name with a random suffix so that two
// entities with the same name never collide.
func Slug(name string) string {
	base := slug.Make(name)
	if base == "" {
		return nanoid.Lower()
	}
	return base + "-" + nanoid.Lower()
}
