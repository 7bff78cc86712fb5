package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"
	"testing"

	"github.com/iExecBlockchainComputing/iexec-result-proxy/core"
	"github.com/iExecBlockchainComputing/iexec-result-proxy/internal/eth"
	"github.com/klauspost/compress/zip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resultZip holds computed.json pointing at /iexec_out/result.txt and result.txt
const resultZip = "UEsDBBQACAgIADhKL1cAAAAAAAAAAAAAAAANAAAAY29tcHV0ZWQuanNvbqtWSkktSS3KzczLLC7JTNbNLy0pKC3RLUgsyVCyUlDSz0ytSE2OB4rqF6UWl+aU6JVUlCjVAgBQSwcIv08alTcAAAA2AAAAUEsDBBQACAgIADhKL1cAAAAAAAAAAAAAAAAKAAAAcmVzdWx0LnR4dG2NsQrDMAxEd33FdbOhoL1boUM/wnCE4MFg2qEZOvjjK9tKhhIbW9LTnQQC6G8ET7DX/5CQhnlJHol3FQkGAuOAU9ENPaqZE45k6h0NSC/N0Ff231DzgW3qbWxqDqeCZuDYkfpCehIQoeYHEtMOR4NRcHKantF55JlrfV9xr2XNF5HHsi2fvCFoyd+8srw03iDyA1BLBwgqyEkSkwAAAE0BAABQSwECFAAUAAgICAA4Si9Xv08alTcAAAA2AAAADQAAAAAAAAAAAAAAAAAAAAAAY29tcHV0ZWQuanNvblBLAQIUABQACAgIADhKL1cqyEkSkwAAAE0BAAAKAAAAAAAAAAAAAAAAAHIAAAByZXN1bHQudHh0UEsFBgAAAAACAAIAcwAAAD0BAAAAAA=="

func decodeResultZip(t *testing.T) []byte {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(resultZip)
	require.NoError(t, err)
	return raw
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

type proxyFixture struct {
	chain   *fakeChain
	enclave *fakeEnclaveChecker
	storage *memoryStorage
	events  *fakeEvents
	scratch string
	service *ProxyService
}

func newProxyFixture(t *testing.T, tag string, opts ...ProxyOption) *proxyFixture {
	t.Helper()
	f := &proxyFixture{
		chain:   newFakeChain(),
		enclave: &fakeEnclaveChecker{},
		storage: newMemoryStorage(),
		events:  &fakeEvents{},
		scratch: t.TempDir(),
	}
	f.service = NewProxyService(f.chain, f.enclave, f.storage, f.events, f.scratch, opts...)
	f.chain.tasks[chainTaskID] = core.ChainTask{ChainTaskID: chainTaskID, DealID: chainDealID, Status: core.TaskActive}
	f.chain.deals[chainDealID] = core.ChainDeal{
		ChainDealID:     chainDealID,
		Tag:             tag,
		Requester:       "0xRequester",
		WorkerpoolPrice: decimal.RequireFromString("1.5"),
	}
	return f
}

func (f *proxyFixture) contribute(status core.ChainContributionStatus, resultHash string) {
	f.chain.contributions[core.AuthorizationKey(chainTaskID, wallet)] = core.ChainContribution{Status: status, ResultHash: resultHash}
}

func (f *proxyFixture) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIsResultValid(t *testing.T) {
	ctx := context.Background()

	t.Run("matching result hash", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		f.contribute(core.ContributionRevealed, resultHashHex)
		assert.True(t, f.service.IsResultValid(ctx, chainTaskID, wallet, decodeResultZip(t)))
		f.assertScratchEmpty(t)
	})

	t.Run("hash mismatch", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		f.contribute(core.ContributionRevealed, "0x01")
		assert.False(t, f.service.IsResultValid(ctx, chainTaskID, wallet, decodeResultZip(t)))
		f.assertScratchEmpty(t)
	})

	t.Run("no contribution", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		assert.False(t, f.service.IsResultValid(ctx, chainTaskID, wallet, decodeResultZip(t)))
	})

	t.Run("contribution not revealed", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		f.contribute(core.ContributionContributed, resultHashHex)
		assert.False(t, f.service.IsResultValid(ctx, chainTaskID, wallet, decodeResultZip(t)))
	})

	t.Run("not a zip", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		f.contribute(core.ContributionRevealed, resultHashHex)
		assert.False(t, f.service.IsResultValid(ctx, chainTaskID, wallet, []byte("garbage")))
		f.assertScratchEmpty(t)
	})

	t.Run("missing computed.json", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		f.contribute(core.ContributionRevealed, resultHashHex)
		archive := buildZip(t, map[string]string{"result.txt": "hello"})
		assert.False(t, f.service.IsResultValid(ctx, chainTaskID, wallet, archive))
		f.assertScratchEmpty(t)
	})

	t.Run("entry escaping the archive", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		f.contribute(core.ContributionRevealed, resultHashHex)
		archive := buildZip(t, map[string]string{
			"computed.json": `{"deterministic-output-path":"/iexec_out/result.txt"}`,
			"../escaped.txt": "evil",
		})
		assert.False(t, f.service.IsResultValid(ctx, chainTaskID, wallet, archive))
		f.assertScratchEmpty(t)
		_, err := os.Stat(f.scratch + "/../escaped.txt")
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("deterministic output escaping the archive", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		f.contribute(core.ContributionRevealed, resultHashHex)
		archive := buildZip(t, map[string]string{
			"computed.json": `{"deterministic-output-path":"/iexec_out/../../etc/passwd"}`,
		})
		assert.False(t, f.service.IsResultValid(ctx, chainTaskID, wallet, archive))
	})

	t.Run("directory output", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		archive := buildZip(t, map[string]string{
			"computed.json": `{"deterministic-output-path":"/iexec_out/out"}`,
			"out/b.txt":     "second",
			"out/a.txt":     "first",
		})
		a := sha256.Sum256([]byte("first"))
		b := sha256.Sum256([]byte("second"))
		digest := sha256.Sum256(append(a[:], b[:]...))
		f.contribute(core.ContributionRevealed, eth.ConcatenateAndHash(chainTaskID, "0x"+hex.EncodeToString(digest[:])))

		assert.True(t, f.service.IsResultValid(ctx, chainTaskID, wallet, archive))
	})

	t.Run("archive inflating past the extraction limit", func(t *testing.T) {
		f := newProxyFixture(t, standardTag, WithMaxExtractedSize(1024))
		f.contribute(core.ContributionRevealed, resultHashHex)
		archive := buildZip(t, map[string]string{
			"computed.json": `{"deterministic-output-path":"/iexec_out/result.txt"}`,
			"result.txt":    strings.Repeat("0", 1<<20),
		})
		require.Less(t, len(archive), 1<<14)

		assert.False(t, f.service.IsResultValid(ctx, chainTaskID, wallet, archive))
		f.assertScratchEmpty(t)
	})
}

func TestUnzipStopsAtLimit(t *testing.T) {
	archive := buildZip(t, map[string]string{"a.txt": strings.Repeat("a", 600), "b.txt": strings.Repeat("b", 600)})
	dest := t.TempDir()

	err := unzip(archive, dest, 1000)
	assert.ErrorIs(t, err, errArchiveTooLarge)

	require.NoError(t, unzip(archive, t.TempDir(), 1200))
}

func TestCanUploadResult(t *testing.T) {
	ctx := context.Background()
	model := core.ResultModel{ChainTaskID: chainTaskID}

	t.Run("standard task", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		f.contribute(core.ContributionRevealed, resultHashHex)
		model := model
		model.Zip = decodeResultZip(t)
		assert.True(t, f.service.CanUploadResult(ctx, model, wallet))
		assert.Zero(t, f.enclave.calls)
	})

	t.Run("standard task with contribution not revealed", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		f.contribute(core.ContributionContributed, resultHashHex)
		model := model
		model.Zip = decodeResultZip(t)
		assert.False(t, f.service.CanUploadResult(ctx, model, wallet))
		assert.Zero(t, f.storage.writes)
	})

	t.Run("unknown task", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		delete(f.chain.tasks, chainTaskID)
		assert.False(t, f.service.CanUploadResult(ctx, model, wallet))
	})

	t.Run("unknown deal", func(t *testing.T) {
		f := newProxyFixture(t, standardTag)
		delete(f.chain.deals, chainDealID)
		assert.False(t, f.service.CanUploadResult(ctx, model, wallet))
	})

	t.Run("TEE task uploaded by requester", func(t *testing.T) {
		f := newProxyFixture(t, teeSconeTag)
		assert.True(t, f.service.CanUploadResult(ctx, model, "0xREQUESTER"))
		assert.Zero(t, f.enclave.calls)

		f.chain.tasks[chainTaskID] = core.ChainTask{DealID: chainDealID, Status: core.TaskCompleted}
		assert.False(t, f.service.CanUploadResult(ctx, model, "0xrequester"))
	})

	t.Run("TEE task uploaded by worker", func(t *testing.T) {
		f := newProxyFixture(t, teeSconeTag)
		assert.False(t, f.service.CanUploadResult(ctx, model, wallet))
		f.enclave.valid = true
		assert.True(t, f.service.CanUploadResult(ctx, model, wallet))
		assert.Equal(t, 2, f.enclave.calls)
	})

	t.Run("already uploaded", func(t *testing.T) {
		f := newProxyFixture(t, teeSconeTag)
		f.enclave.valid = true
		_, err := f.storage.AddResult(ctx, chainTaskID, []byte("zip"))
		require.NoError(t, err)
		assert.False(t, f.service.CanUploadResult(ctx, model, wallet))
		assert.False(t, f.service.CanUploadResult(ctx, model, "0xrequester"))
		assert.Zero(t, f.enclave.calls)
	})
}

func TestAddResult(t *testing.T) {
	ctx := context.Background()
	f := newProxyFixture(t, standardTag)
	model := core.ResultModel{ChainTaskID: chainTaskID, Zip: []byte("zip")}

	link, err := f.service.AddResult(ctx, model, wallet)
	require.NoError(t, err)
	assert.Equal(t, "/results/"+chainTaskID, link)
	require.Len(t, f.events.uploads, 1)
	uploaded := f.events.uploads[0]
	assert.Equal(t, chainTaskID, uploaded.ChainTaskID)
	assert.Equal(t, wallet, uploaded.Uploader)
	assert.Equal(t, link, uploaded.Link)
	assert.True(t, decimal.RequireFromString("1.5").Equal(uploaded.WorkerpoolPrice))

	found, err := f.service.IsResultFound(ctx, chainTaskID)
	require.NoError(t, err)
	assert.True(t, found)

	handle, err := f.service.GetResultHandle(ctx, chainTaskID)
	require.NoError(t, err)
	assert.Equal(t, link, handle)

	data, err := f.service.GetResult(ctx, chainTaskID)
	require.NoError(t, err)
	assert.Equal(t, []byte("zip"), data)

	link, err = f.service.AddResult(ctx, model, "0xother")
	require.NoError(t, err)
	assert.Empty(t, link)
	assert.Equal(t, 1, f.storage.writes)
	assert.Len(t, f.events.uploads, 1)

	_, err = f.service.AddResult(ctx, core.ResultModel{ChainTaskID: "0x02"}, wallet)
	assert.Error(t, err)
}

func TestAddResultWithoutDeal(t *testing.T) {
	f := newProxyFixture(t, standardTag)
	delete(f.chain.deals, chainDealID)

	link, err := f.service.AddResult(context.Background(), core.ResultModel{ChainTaskID: chainTaskID, Zip: []byte("zip")}, wallet)
	require.NoError(t, err)
	assert.NotEmpty(t, link)
	require.Len(t, f.events.uploads, 1)
	assert.True(t, f.events.uploads[0].WorkerpoolPrice.IsZero())
}
