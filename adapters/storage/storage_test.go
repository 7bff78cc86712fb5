package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/adapters/database"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	shell "github.com/ipfs/go-ipfs-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chainTaskID = "0x877210dbec7b8461e396751e311b574d6b6909e3618dd0622f7182eaffdc6901"
	ipfsHash    = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
)

type fakeShell struct {
	hash    string
	addErr  error
	objects map[string][]byte
	adds    int
}

func (f *fakeShell) Add(r io.Reader, options ...shell.AddOpts) (string, error) {
	f.adds++
	if f.addErr != nil {
		return "", f.addErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.objects["/ipfs/"+f.hash] = data
	return f.hash, nil
}

func (f *fakeShell) Cat(path string) (io.ReadCloser, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("%s not found", path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeShell) ID(peer ...string) (*shell.IdOutput, error) {
	return &shell.IdOutput{ID: "peer"}, nil
}

func newConnection(t *testing.T) *database.Connection {
	t.Helper()
	conn, err := database.Open(database.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestIpfsStorage(t *testing.T) {
	ctx := context.Background()
	sh := &fakeShell{hash: ipfsHash, objects: map[string][]byte{}}
	s := NewIpfsStorage(sh, database.ResultNameRepository{DB: newConnection(t)})

	exists, err := s.DoesResultExist(ctx, chainTaskID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = s.GetResult(ctx, chainTaskID)
	assert.ErrorIs(t, err, core.ErrResultNotFound)

	link, err := s.AddResult(ctx, chainTaskID, []byte("zip"))
	require.NoError(t, err)
	assert.Equal(t, "/ipfs/"+ipfsHash, link)

	handle, err := s.GetResultHandle(ctx, chainTaskID)
	require.NoError(t, err)
	assert.Equal(t, ipfsHash, handle)

	data, err := s.GetResult(ctx, chainTaskID)
	require.NoError(t, err)
	assert.Equal(t, []byte("zip"), data)

	t.Run("first write wins", func(t *testing.T) {
		link, err := s.AddResult(ctx, chainTaskID, []byte("other"))
		assert.ErrorIs(t, err, core.ErrResultAlreadyStored)
		assert.Empty(t, link)
		assert.Equal(t, 1, sh.adds)
	})
}

func TestIpfsStorageRejectsInvalidHash(t *testing.T) {
	sh := &fakeShell{hash: "not-a-cid", objects: map[string][]byte{}}
	s := NewIpfsStorage(sh, database.ResultNameRepository{DB: newConnection(t)})

	_, err := s.AddResult(context.Background(), chainTaskID, []byte("zip"))
	assert.Error(t, err)

	exists, err := s.DoesResultExist(context.Background(), chainTaskID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIpfsStorageAddFailure(t *testing.T) {
	sh := &fakeShell{addErr: errors.New("node down"), objects: map[string][]byte{}}
	s := NewIpfsStorage(sh, database.ResultNameRepository{DB: newConnection(t)})

	_, err := s.AddResult(context.Background(), chainTaskID, []byte("zip"))
	assert.Error(t, err)
}

func TestConnectIpfsGivesUp(t *testing.T) {
	_, err := ConnectIpfs(context.Background(), "127.0.0.1:1", 2, 0)
	assert.Error(t, err)
}

func TestDocumentStorage(t *testing.T) {
	ctx := context.Background()
	s := NewDocumentStorage(database.ResultDocuments{DB: newConnection(t)})

	_, err := s.GetResultHandle(ctx, chainTaskID)
	assert.ErrorIs(t, err, core.ErrResultNotFound)

	link, err := s.AddResult(ctx, chainTaskID, []byte("zip"))
	require.NoError(t, err)
	assert.Equal(t, "/results/"+chainTaskID, link)

	_, err = s.AddResult(ctx, chainTaskID, []byte("zip"))
	assert.ErrorIs(t, err, core.ErrResultAlreadyStored)

	exists, err := s.DoesResultExist(ctx, chainTaskID)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := s.GetResult(ctx, chainTaskID)
	require.NoError(t, err)
	assert.Equal(t, []byte("zip"), data)

	handle, err := s.GetResultHandle(ctx, chainTaskID)
	require.NoError(t, err)
	assert.Equal(t, link, handle)
}
