package storage

import (
	"context"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/ports"
)

const documentAddressPrefix = "/results/"

// Documents is the blob repository behind DocumentStorage
type Documents interface {
	Insert(ctx context.Context, chainTaskID string, zip []byte) error
	Find(ctx context.Context, chainTaskID string) ([]byte, error)
	Exists(ctx context.Context, chainTaskID string) (bool, error)
}

// DocumentStorage keeps result archives in the database
type DocumentStorage struct {
	documents Documents
}

func NewDocumentStorage(documents Documents) *DocumentStorage {
	return &DocumentStorage{documents: documents}
}

var _ ports.ResultStorage = (*DocumentStorage)(nil)

func (s *DocumentStorage) AddResult(ctx context.Context, chainTaskID string, data []byte) (string, error) {
	if err := s.documents.Insert(ctx, chainTaskID, data); err != nil {
		return "", err
	}
	return documentAddressPrefix + chainTaskID, nil
}

func (s *DocumentStorage) GetResult(ctx context.Context, chainTaskID string) ([]byte, error) {
	return s.documents.Find(ctx, chainTaskID)
}

func (s *DocumentStorage) DoesResultExist(ctx context.Context, chainTaskID string) (bool, error) {
	return s.documents.Exists(ctx, chainTaskID)
}

func (s *DocumentStorage) GetResultHandle(ctx context.Context, chainTaskID string) (string, error) {
	exists, err := s.documents.Exists(ctx, chainTaskID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", core.ErrResultNotFound
	}
	return documentAddressPrefix + chainTaskID, nil
}
