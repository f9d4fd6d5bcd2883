package lecture

import (
	"crypto/rand"
	"math/big"
)

// CodeAlphabet is made of uppercase letters and digits that cannot be confused when typed (no 0/O, no 1/I).
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var generateCodeFunc = generateCode // mockable

// generateCode draws length characters uniformly from CodeAlphabet.
func generateCode(length int) (string, error) {
	max := big.NewInt(int64(len(CodeAlphabet)))
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = CodeAlphabet[n.Int64()]
	}
	return string(code), nil
}
