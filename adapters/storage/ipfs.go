package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
	"github.com/ipfs/go-cid"
	shell "github.com/ipfs/go-ipfs-api"
	"github.com/rs/zerolog/log"
)

const ipfsAddressPrefix = "/ipfs/"

// Shell is the subset of the IPFS HTTP API used to store results
type Shell interface {
	Add(r io.Reader, options ...shell.AddOpts) (string, error)
	Cat(path string) (io.ReadCloser, error)
	ID(peer ...string) (*shell.IdOutput, error)
}

// IpfsStorage pins result archives on an IPFS node. The task to hash mapping
// lives in the result name repository.
type IpfsStorage struct {
	shell Shell
	names ports.ResultNameRepository
}

func NewIpfsStorage(sh Shell, names ports.ResultNameRepository) *IpfsStorage {
	return &IpfsStorage{shell: sh, names: names}
}

var _ ports.ResultStorage = (*IpfsStorage)(nil)

// ConnectIpfs waits for the node at url to answer, giving up after maxAttempts
func ConnectIpfs(ctx context.Context, url string, maxAttempts int, delay time.Duration) (*shell.Shell, error) {
	sh := shell.NewShell(url)
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		id, err := sh.ID()
		if err == nil {
			log.Info().Str("url", url).Str("peer", id.ID).Msg("Connected to IPFS node")
			return sh, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("url", url).Int("attempt", attempt).Msg("IPFS node not reachable")
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("IPFS node %s unreachable after %d attempts: %w", url, maxAttempts, lastErr)
}

func (s *IpfsStorage) AddResult(ctx context.Context, chainTaskID string, data []byte) (string, error) {
	exists, err := s.DoesResultExist(ctx, chainTaskID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", core.ErrResultAlreadyStored
	}

	hash, err := s.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return "", fmt.Errorf("failed to add result of %s to IPFS: %w", chainTaskID, err)
	}
	if _, err := cid.Decode(hash); err != nil {
		return "", fmt.Errorf("IPFS returned invalid hash %q: %w", hash, err)
	}

	if err := s.names.Save(ctx, core.ResultName{ChainTaskID: chainTaskID, Handle: hash}); err != nil {
		if errors.Is(err, core.ErrResultAlreadyStored) {
			log.Ctx(ctx).Error().Str("chainTaskId", chainTaskID).Str("ipfsHash", hash).
				Msg("IPFS hash already set for task result")
		}
		return "", err
	}
	return ipfsAddressPrefix + hash, nil
}

func (s *IpfsStorage) GetResult(ctx context.Context, chainTaskID string) ([]byte, error) {
	name, err := s.names.Find(ctx, chainTaskID)
	if err != nil {
		return nil, err
	}
	c, err := cid.Decode(name.Handle)
	if err != nil {
		return nil, fmt.Errorf("invalid IPFS hash %q for %s: %w", name.Handle, chainTaskID, err)
	}

	reader, err := s.shell.Cat(ipfsAddressPrefix + c.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch result of %s from IPFS: %w", chainTaskID, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read result of %s from IPFS: %w", chainTaskID, err)
	}
	return data, nil
}

func (s *IpfsStorage) DoesResultExist(ctx context.Context, chainTaskID string) (bool, error) {
	_, err := s.names.Find(ctx, chainTaskID)
	if errors.Is(err, core.ErrResultNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetResultHandle returns the IPFS hash of the task result
func (s *IpfsStorage) GetResultHandle(ctx context.Context, chainTaskID string) (string, error) {
	name, err := s.names.Find(ctx, chainTaskID)
	if err != nil {
		return "", err
	}
	return name.Handle, nil
}
