package wire

import (
	"bytes"
	"crypto/sha1"
)

// HashPassword returns SHA1(password), the form stored/looked up by the
// auth cache.
func HashPassword(password string) []byte {
	h := sha1.Sum([]byte(password))
	return h[:]
}

// doubleSHA1 returns SHA1(SHA1(password)), the form the spec calls pwd
// when verifying a client's auth token.
func doubleSHA1(clientSHA1 []byte) []byte {
	h := sha1.Sum(clientSHA1)
	return h[:]
}

// CheckPassword verifies a client's auth token against a stored
// SHA1(password) hash, per spec section 4.A:
//
//	client_sha1 = SHA1(password)
//	expected = SHA1(client_sha1) XOR SHA1(scramble . SHA1(client_sha1))
//
// and the client is accepted iff auth == expected.
func CheckPassword(clientSHA1, scramble, auth []byte) bool {
	hpwd := doubleSHA1(clientSHA1)
	if len(auth) != sha1.Size {
		return len(auth) == 0 && len(hpwd) == 0
	}
	h := sha1.New()
	h.Write(scramble)
	h.Write(hpwd)
	mixed := h.Sum(nil)
	for i := range mixed {
		mixed[i] ^= auth[i]
	}
	got := doubleSHA1(mixed)
	return bytes.Equal(hpwd, got)
}

// ComputeAuthResponse computes the token this proxy must send when it
// authenticates as a client against a backend server, given the backend's
// scramble and the plaintext password on file for that backend account.
// It is the inverse construction of CheckPassword.
func ComputeAuthResponse(password string, scramble []byte) []byte {
	clientSHA1 := HashPassword(password)
	hpwd := doubleSHA1(clientSHA1)
	h := sha1.New()
	h.Write(scramble)
	h.Write(hpwd)
	mixed := h.Sum(nil)
	for i := range mixed {
		mixed[i] ^= clientSHA1[i]
	}
	return mixed
}
