package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeSource draws candidate booking codes.
type CodeSource interface {
	Generate() (string, error)
}

// CodeFunc adapts a function to CodeSource.
type CodeFunc func() (string, error)

func (f CodeFunc) Generate() (string, error) { return f() }

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator mints booking codes: a fixed prefix followed by Length
// random uppercase alphanumerics.
type CodeGenerator struct {
	Prefix string
	Length int
}

func (g CodeGenerator) Generate() (string, error) {
	suffix := make([]byte, g.Length)
	for i := range suffix {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", fmt.Errorf("generate booking code: %w", err)
		}
		suffix[i] = codeAlphabet[num.Int64()]
	}
	return g.Prefix + string(suffix), nil
}

// Valid reports whether code has the generator's shape.
func (g CodeGenerator) Valid(code string) bool {
	if !strings.HasPrefix(code, g.Prefix) || len(code) != len(g.Prefix)+g.Length {
		return false
	}
	for _, c := range code[len(g.Prefix):] {
		if !strings.ContainsRune(codeAlphabet, c) {
			return false
		}
	}
	return true
}
