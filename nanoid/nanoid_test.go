package nanoid

import (
	"strings"
	"testing"

	"github.com/ncobase/keyvault/consts"
)

func TestPrimaryKey(t *testing.T) {
	id := PrimaryKey()
	if len(id) != consts.PrimaryKeySize {
		t.Errorf("expected length %d, got %d", consts.PrimaryKeySize, len(id))
	}
	if PrimaryKey() == id {
		t.Errorf("expected distinct ids, got %v twice", id)
	}
}

func TestLower(t *testing.T) {
	s := Lower()
	if len(s) != consts.SlugSuffixSize {
		t.Errorf("expected length %d, got %d", consts.SlugSuffixSize, len(s))
	}
	if strings.ToLower(s) != s {
		t.Errorf("expected lowercase, got %v", s)
	}
}
