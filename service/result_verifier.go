package service

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/eth"
	"github.com/klauspost/compress/zip"
)

const (
	iexecOut         = "iexec_out"
	computedFileName = "computed.json"
)

var errArchiveTooLarge = errors.New("result archive exceeds extraction limit")

// computeResultHash unzips a result archive into scratch and returns the result
// hash of its deterministic output for chainTaskID. At most maxSize bytes are extracted.
func computeResultHash(chainTaskID string, archive []byte, scratch string, maxSize int64) (string, error) {
	outDir := filepath.Join(scratch, iexecOut)
	if err := unzip(archive, outDir, maxSize); err != nil {
		return "", err
	}

	raw, err := os.ReadFile(filepath.Join(outDir, computedFileName))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", computedFileName, err)
	}
	var computed core.ComputedFile
	if err := json.Unmarshal(raw, &computed); err != nil {
		return "", fmt.Errorf("failed to parse %s: %w", computedFileName, err)
	}
	if computed.DeterministicOutputPath == "" {
		return "", fmt.Errorf("%s has no deterministic output path", computedFileName)
	}

	outputPath, err := deterministicOutputPath(computed.DeterministicOutputPath, outDir)
	if err != nil {
		return "", err
	}
	digest, err := resultDigest(outputPath)
	if err != nil {
		return "", err
	}
	return eth.ConcatenateAndHash(chainTaskID, digest), nil
}

// deterministicOutputPath maps /iexec_out/... of the task container onto the extracted archive
func deterministicOutputPath(declared, outDir string) (string, error) {
	rel := strings.TrimPrefix(declared, "/"+iexecOut)
	path := filepath.Join(outDir, filepath.FromSlash(rel))
	if !withinDir(path, outDir) {
		return "", fmt.Errorf("deterministic output path %q escapes %s", declared, iexecOut)
	}
	return path, nil
}

// resultDigest is the sha256 of a file, or for a directory the sha256 of the
// concatenated sha256 of its regular files in lexical order.
func resultDigest(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("deterministic output not found: %w", err)
	}
	if !info.IsDir() {
		sum, err := fileSha256(path)
		if err != nil {
			return "", err
		}
		return "0x" + hex.EncodeToString(sum), nil
	}

	var concatenated []byte
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		sum, err := fileSha256(p)
		if err != nil {
			return err
		}
		concatenated = append(concatenated, sum...)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to hash output directory: %w", err)
	}
	sum := sha256.Sum256(concatenated)
	return "0x" + hex.EncodeToString(sum[:]), nil
}

func fileSha256(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return h.Sum(nil), nil
}

// unzip extracts archive into dest, refusing entries that would land outside of it
// and archives inflating to more than maxSize bytes
func unzip(archive []byte, dest string, maxSize int64) error {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return fmt.Errorf("invalid result archive: %w", err)
	}
	if err := os.MkdirAll(dest, 0o700); err != nil {
		return err
	}

	remaining := maxSize
	for _, entry := range reader.File {
		if entry.UncompressedSize64 > uint64(remaining) {
			return fmt.Errorf("%w: entry %q", errArchiveTooLarge, entry.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(entry.Name))
		if !withinDir(target, dest) {
			return fmt.Errorf("archive entry %q escapes destination", entry.Name)
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o700); err != nil {
				return err
			}
			continue
		}
		if !entry.Mode().IsRegular() {
			continue
		}
		written, err := extractFile(entry, target, remaining)
		if err != nil {
			return err
		}
		remaining -= written
	}
	return nil
}

// extractFile writes entry to target and fails once more than limit bytes were
// inflated, whatever size the entry header declares
func extractFile(entry *zip.File, target string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
		return 0, err
	}
	src, err := entry.Open()
	if err != nil {
		return 0, fmt.Errorf("failed to open archive entry %q: %w", entry.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		dst.Close()
		return written, fmt.Errorf("failed to extract %q: %w", entry.Name, err)
	}
	if written > limit {
		dst.Close()
		return written, fmt.Errorf("%w: entry %q", errArchiveTooLarge, entry.Name)
	}
	return written, dst.Close()
}

func withinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
