package sessions

import (
	"math/rand"
	"strings"
)

const (
	// CodeLength is the number of characters in a session code
	CodeLength = 5

	// MaxCodeAttempts bounds retries when a generated code collides with a live one
	MaxCodeAttempts = 16

	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// CodeGenerator produces human-typable session codes
type CodeGenerator interface {
	Generate() string
}

// CodeGeneratorFunc adapts a plain function to CodeGenerator
type CodeGeneratorFunc func() string

func (f CodeGeneratorFunc) Generate() string { return f() }

// randomCodes draws CodeLength base-36 characters. Not cryptographically secure.
type randomCodes struct{}

// NewRandomCodeGenerator returns the default base-36 generator
func NewRandomCodeGenerator() CodeGenerator {
	return randomCodes{}
}

func (randomCodes) Generate() string {
	var b strings.Builder
	b.Grow(CodeLength)
	for i := 0; i < CodeLength; i++ {
		b.WriteByte(codeAlphabet[rand.Intn(len(codeAlphabet))])
	}
	return b.String()
}

// NormalizeCode canonicalizes user-typed codes
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether code has the generated shape
func ValidCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
