package trustlist

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"go.uber.org/zap"
)

// Known trust list sources.
//
// AT is the list used by the Austrian greencheck app; DE is the list used by
// the German Digitaler-Impfnachweis app, with a detached public key.
const (
	CertsURLAT = "https://greencheck.gv.at/api/masterdata"

	CertsURLDE  = "https://de.dscg.ubirch.com/trustList/DSC/"
	PubkeyURLDE = "https://github.com/Digitaler-Impfnachweis/covpass-ios/raw/main/Certificates/PROD_RKI/CA/pubkey.pem"
)

const downloadTimeout = 30 * time.Second

// The AT masterdata document wraps a base64 encoded CBOR certificate list
type atMasterdata struct {
	TrustList struct {
		TrustListContent string `json:"trustListContent"`
	} `json:"trustList"`
}

type Downloader struct {
	client *http.Client
	logger *zap.Logger
}

func NewDownloader(logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Downloader{
		client: &http.Client{Timeout: downloadTimeout},
		logger: logger,
	}
}

// Download fetches and unions the given sources, in order. Each source is
// fetched exactly once, without retries; a later source overwrites an earlier
// one on key id collision.
func (d *Downloader) Download(ctx context.Context, sources []string) (*Store, error) {
	store := NewStore()
	for _, source := range sources {
		var sourceStore *Store
		var err error

		switch strings.ToUpper(strings.TrimSpace(source)) {
		case "AT":
			sourceStore, err = d.downloadAT(ctx)
		case "DE":
			sourceStore, err = d.downloadDE(ctx)
		default:
			return nil, errors.Errorf("Unknown trust list source: %s", source)
		}

		if err != nil {
			msg := fmt.Sprintf("Could not download trust list source %s", source)
			return nil, errors.WrapPrefix(err, msg, 0)
		}

		store.Merge(sourceStore)
	}

	return store, nil
}

func (d *Downloader) downloadAT(ctx context.Context) (*Store, error) {
	body, _, err := d.fetch(ctx, CertsURLAT)
	if err != nil {
		return nil, err
	}

	var masterdata atMasterdata
	err = json.Unmarshal(body, &masterdata)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not JSON unmarshal masterdata", 0)
	}

	listCbor, err := base64.StdEncoding.DecodeString(masterdata.TrustList.TrustListContent)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not base64 decode trust list content", 0)
	}

	return LoadCBOR(listCbor)
}

func (d *Downloader) downloadDE(ctx context.Context) (*Store, error) {
	listBytes, _, err := d.fetch(ctx, CertsURLDE)
	if err != nil {
		return nil, err
	}

	pk, err := d.downloadPublicKeyDE(ctx)
	if err != nil {
		return nil, err
	}

	return LoadSignedJSON(listBytes, pk, d.logger)
}

// A missing or unusable public key loads the list unverified, with a warning.
func (d *Downloader) downloadPublicKeyDE(ctx context.Context) (*ecdsa.PublicKey, error) {
	pemBytes, statusCode, err := d.fetchAllowNotFound(ctx, PubkeyURLDE)
	if err != nil {
		return nil, err
	}

	if statusCode == http.StatusNotFound {
		d.logger.Warn("Trust list public key not found (404), loading list unverified",
			zap.String("url", PubkeyURLDE))
		return nil, nil
	}

	pk, err := LoadPublicKeyPEM(pemBytes)
	if err != nil {
		d.logger.Warn("Could not use trust list public key, loading list unverified",
			zap.String("url", PubkeyURLDE),
			zap.Error(err))
		return nil, nil
	}

	return pk, nil
}

func (d *Downloader) fetch(ctx context.Context, url string) ([]byte, int, error) {
	body, statusCode, err := d.fetchAllowNotFound(ctx, url)
	if err != nil {
		return nil, 0, err
	}

	if statusCode != http.StatusOK {
		return nil, statusCode, errors.Errorf("Unexpected status code %d for %s", statusCode, url)
	}

	return body, statusCode, nil
}

func (d *Downloader) fetchAllowNotFound(ctx context.Context, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, errors.WrapPrefix(err, "Could not create trust list request", 0)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		msg := fmt.Sprintf("Could not fetch %s", url)
		return nil, 0, errors.WrapPrefix(err, msg, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return nil, resp.StatusCode, errors.Errorf("Unexpected status code %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		msg := fmt.Sprintf("Could not read response body of %s", url)
		return nil, 0, errors.WrapPrefix(err, msg, 0)
	}

	return body, resp.StatusCode, nil
}
