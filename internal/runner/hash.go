package runner

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// CodeHash returns the current git HEAD short hash, or "unknown" when
// not running inside a git checkout.
func CodeHash() string {
	out, err := exec.Command("git", "rev-parse", "--short", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

// FileDigest computes the sha256 hex digest of one file
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

// InputsDigest combines the digests of the given input files into one
// reproducibility hash. Missing files are skipped; path order does not
// matter.
func InputsDigest(paths ...string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)

	h := sha256.New()
	for _, p := range sorted {
		digest, err := FileDigest(p)
		if err != nil {
			continue
		}
		h.Write([]byte(p))
		h.Write([]byte(digest))
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil))
}
