package token

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
)

// Cipher names accepted in the preference list.
const (
	CipherAES256CTR = "aes-256-ctr"
	CipherAES256CBC = "aes-256-cbc"
)

const ivSize = aes.BlockSize

var errBadPadding = errors.New("invalid padding")

type streamCipher struct {
	name    string
	encrypt func(key, iv, plain []byte) ([]byte, error)
	decrypt func(key, iv, sealed []byte) ([]byte, error)
}

var ciphers = map[string]streamCipher{
	CipherAES256CTR: {name: CipherAES256CTR, encrypt: ctrXOR, decrypt: ctrXOR},
	CipherAES256CBC: {name: CipherAES256CBC, encrypt: cbcEncrypt, decrypt: cbcDecrypt},
}

// selectCipher returns the first available cipher in prefs.
func selectCipher(prefs []string) (streamCipher, bool) {
	for _, name := range prefs {
		if sc, ok := ciphers[name]; ok {
			return sc, true
		}
	}
	return streamCipher{}, false
}

func ctrXOR(key, iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in))
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
	return out, nil
}

func cbcEncrypt(key, iv, plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func cbcDecrypt(key, iv, sealed []byte) ([]byte, error) {
	if len(sealed) == 0 || len(sealed)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(sealed))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, sealed)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errBadPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errBadPadding
		}
	}
	return b[:len(b)-n], nil
}
