package consts

// Character sets
const (
	Number        = "0123456789"
	Lowercase     = "abcdefghijklmnopqrstuvwxyz"
	Uppercase     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	NumLower      = Number + Lowercase
	NumLowerUpper = Number + Lowercase + Uppercase
)

// Id and slug suffix alphabets and sizes.
const (
	PrimaryKey     = NumLowerUpper
	PrimaryKeySize = 16
	SlugSuffixSize = 6
)
