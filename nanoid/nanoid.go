package nanoid

import (
	"github.com/ncobase/keyvault/consts"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

func getSize(def int, l ...int) int {
	if len(l) > 0 && l[0] > 0 {
		return l[0]
	}
	return def
}

// PrimaryKey generate primary key
func PrimaryKey(l ...int) string {
	return gonanoid.MustGenerate(consts.PrimaryKey, getSize(consts.PrimaryKeySize, l...))
}

// Lower generate optional length lowercase alphanumeric nanoid
func Lower(l ...int) string {
	return gonanoid.MustGenerate(consts.NumLower, getSize(consts.SlugSuffixSize, l...))
}
