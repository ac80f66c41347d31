package trustlist

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/go-errors/errors"
)

// KeyIDLength is the number of leading SHA-256 fingerprint bytes that make up
// a key identifier.
const KeyIDLength = 8

// Entry is a single trusted signing certificate, resolved by its key id.
type Entry struct {
	KID         []byte
	Certificate *x509.Certificate
}

// NewEntry parses a DER certificate and establishes the key id invariant:
// the given kid must equal the first 8 bytes of the certificate's SHA-256
// fingerprint.
func NewEntry(kid []byte, certDer []byte) (*Entry, error) {
	cert, err := x509.ParseCertificate(certDer)
	if err != nil {
		return nil, errors.WrapPrefix(err, "Could not parse DER certificate", 0)
	}

	fingerprint := sha256.Sum256(cert.Raw)
	if !bytes.Equal(kid, fingerprint[0:KeyIDLength]) {
		msg := fmt.Sprintf("Key ID mismatch: %x != %x", kid, fingerprint[0:KeyIDLength])
		return nil, errors.WrapPrefix(ErrKeyIDMismatch, msg, 0)
	}

	return &Entry{KID: kid, Certificate: cert}, nil
}

func (e *Entry) KIDHex() string {
	return hex.EncodeToString(e.KID)
}

func (e *Entry) KIDBase64() string {
	return base64.StdEncoding.EncodeToString(e.KID)
}

// Store maps key identifiers to exactly one certificate entry. It is built
// once by the loaders and read-only during verification.
type Store struct {
	entries map[string]*Entry
}

func NewStore() *Store {
	return &Store{entries: map[string]*Entry{}}
}

// Add inserts an entry; a later entry with the same key id wins.
func (s *Store) Add(entry *Entry) {
	s.entries[string(entry.KID)] = entry
}

func (s *Store) Get(kid []byte) (*Entry, bool) {
	entry, ok := s.entries[string(kid)]
	return entry, ok
}

// Merge unions the other store into this one; the other store's entries win
// on key id collision.
func (s *Store) Merge(other *Store) {
	for kid, entry := range other.entries {
		s.entries[kid] = entry
	}
}

func (s *Store) Len() int {
	return len(s.entries)
}

// Entries returns every entry, sorted by certificate issuer, subject and
// key id for stable listing.
func (s *Store) Entries() []*Entry {
	entries := make([]*Entry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		ci, cj := entries[i].Certificate, entries[j].Certificate
		if ii, ij := ci.Issuer.String(), cj.Issuer.String(); ii != ij {
			return ii < ij
		}
		if si, sj := ci.Subject.String(), cj.Subject.String(); si != sj {
			return si < sj
		}
		return bytes.Compare(entries[i].KID, entries[j].KID) < 0
	})

	return entries
}
