package trustlist

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/go-errors/errors"
)

type cborCertificateList struct {
	Certificates []cborCertificateItem `cbor:"c"`
}

type cborCertificateItem struct {
	KID  []byte `cbor:"i"`
	Cert []byte `cbor:"c"`
}

// LoadCBOR builds a store from a binary CBOR certificate list. A single entry
// whose key id does not match its certificate fingerprint rejects the whole
// list.
func LoadCBOR(listCbor []byte) (*Store, error) {
	var list *cborCertificateList
	err := cbor.Unmarshal(listCbor, &list)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not CBOR unmarshal certificate list", 0)
	}
	if list == nil {
		return nil, errors.Errorf("Could not process empty certificate list")
	}

	store := NewStore()
	for _, item := range list.Certificates {
		entry, err := NewEntry(item.KID, item.Cert)
		if err != nil {
			return nil, errors.WrapPrefix(err, "Could not load certificate list entry", 0)
		}

		store.Add(entry)
	}

	return store, nil
}
