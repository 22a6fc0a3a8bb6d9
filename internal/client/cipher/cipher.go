// Package cipher 提供消息文本的对称加解密。
// 口令为全端共享，仅防御存储侧的被动窥探，并非端到端安全：
// 知晓口令的一方（包括服务端）同样可以解密。这是记录在案的设计边界。
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
	// 每条消息独立派生密钥，迭代成本放在这里
	kdfIterations = 100_000
)

var ErrEncrypt = errors.New("消息加密失败")

// deriveKey 以消息级随机盐从共享口令派生 AES-256 密钥
func deriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, kdfIterations, keySize, sha256.New)
}

// Encrypt 加密消息文本，线格式 base64(salt || nonce || ciphertext+tag)
func Encrypt(plaintext, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEncrypt
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", ErrEncrypt
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", ErrEncrypt
	}

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return "", ErrEncrypt
	}
	aesgcm, err := gocipher.NewGCM(block)
	if err != nil {
		return "", ErrEncrypt
	}

	sealed := aesgcm.Seal(nil, nonce, []byte(plaintext), nil)

	blob := make([]byte, 0, saltSize+nonceSize+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt 解密消息文本。任何失败（损坏的密文、错误口令、长度不足）
// 一律返回空串，调用方以“加密消息”占位展示，绝不向上抛出。
func Decrypt(blob, passphrase string) string {
	if blob == "" || passphrase == "" {
		return ""
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return ""
	}
	if len(raw) < saltSize+nonceSize+1 {
		return ""
	}

	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+nonceSize]
	sealed := raw[saltSize+nonceSize:]

	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return ""
	}
	aesgcm, err := gocipher.NewGCM(block)
	if err != nil {
		return ""
	}

	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return ""
	}
	return string(plaintext)
}
