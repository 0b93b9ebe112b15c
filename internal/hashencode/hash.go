// Package hashencode provides small helpers for hashing the container files
// that make up a dataset.
package hashencode

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/spf13/afero"
)

// ComputeHexSHA256 computes the SHA-256 hash of data and returns it as a
// hexadecimal string.
func ComputeHexSHA256(data []byte) string {
	hasher := sha256.New()
	_, _ = hasher.Write(data) // hasher.Write can't fail; the returned values are just to implement io.Writer
	return hex.EncodeToString(hasher.Sum(nil))
}

// ComputeReaderHexSHA256 streams r through SHA-256 and returns the digest as
// a hexadecimal string, without holding the whole input in memory.
func ComputeReaderHexSHA256(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ComputeFileHexSHA256 computes the SHA-256 hash of the file at path and
// returns the result as a hexadecimal string.
//
// Returns an error if the file cannot be opened or read.
func ComputeFileHexSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ComputeReaderHexSHA256(f)
}

// ComputeFileHexSHA256WithFs is ComputeFileHexSHA256 against an afero
// filesystem, so dataset code can be exercised against an in-memory fs in
// tests.
func ComputeFileHexSHA256WithFs(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return ComputeReaderHexSHA256(f)
}

// VerifyFileHexSHA256 checks whether the file at path matches the given
// hexadecimal SHA-256 digest.
//
// Returns false (rather than an error) if the file is missing, can't be
// read, or simply doesn't match, since all of those cases mean "not
// verified" to the caller.
func VerifyFileHexSHA256(path string, hexDigest string) bool {
	actual, err := ComputeFileHexSHA256(path)
	if err != nil {
		return false
	}
	return actual == hexDigest
}
