// Package credential implements the credential store (component C2):
// it holds bcrypt-hashed client-facing API keys, validates presented
// keys in constant time, and hands the dispatch layer an opaque handle
// for whichever upstream credential (a static Azure key or an Azure AD
// service principal) configuration selected. Grounded on the teacher
// corpus's axonhub auth service (bcrypt hash/verify) and on the
// placeholder/entropy rejection config.Load already applies to
// PROXY_API_KEY.
package credential

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/laiskydev/respgate/internal/config"
	"github.com/laiskydev/respgate/internal/logger"
)

// RecordType distinguishes a plain client API key from a record backed
// by an Azure AD service principal, whose JWT expiry the store caches
// alongside the hash so a caller can tell when to refresh it.
type RecordType string

const (
	TypeStaticKey RecordType = "static_key"
	TypeAzureAD   RecordType = "azure_ad"
)

// Record is one configured client credential. The plaintext key is
// never retained past hashing; Hash is a hex-encoded bcrypt digest.
type Record struct {
	Name       string
	Type       RecordType
	Hash       string
	CostFactor int
	CreatedAt  time.Time
	LastUsedAt time.Time
	UsageCount uint64
	JWTExpiry  time.Time
}

// UpstreamHandle is the opaque credential the dispatch backends need to
// authenticate to Azure, returned by Store.UpstreamHandle so callers
// never have to read raw config themselves.
type UpstreamHandle struct {
	AzureAPIKey         string
	AzureADTenantID     string
	AzureADClientID     string
	AzureADClientSecret string
}

// UsesAzureAD reports whether the handle should authenticate via an
// Azure AD client-credentials flow instead of a static api-key header.
func (h UpstreamHandle) UsesAzureAD() bool {
	return h.AzureAPIKey == "" && h.AzureADTenantID != "" && h.AzureADClientID != "" && h.AzureADClientSecret != ""
}

// dummyHash is compared against on every Validate call that finds no
// matching record, so a request against an empty or exhausted record
// set costs the same bcrypt work as one that almost matched — nothing
// about timing reveals whether the store holds zero keys or many.
var dummyHash = mustHash("respgate-dummy-comparison-subject")

// Store holds the process's client-facing credentials plus the single
// upstream handle selected at startup.
type Store struct {
	mu       sync.Mutex
	records  []*Record
	upstream UpstreamHandle
	nowFn    func() time.Time
}

// New builds a Store from cfg. PROXY_API_KEY may hold a single key or a
// comma-separated list, letting more than one client key be recognized
// without multiplying environment variables (spec §4.2, §6). Each key
// is rejected at startup with MisconfiguredCredentials-equivalent error
// if it looks like a placeholder or has insufficient entropy.
func New(cfg *config.Config) (*Store, error) {
	s := &Store{nowFn: time.Now}
	s.upstream = UpstreamHandle{
		AzureAPIKey:         cfg.AzureOpenAIAPIKey,
		AzureADTenantID:     cfg.AzureADTenantID,
		AzureADClientID:     cfg.AzureADClientID,
		AzureADClientSecret: cfg.AzureADClientSecret,
	}

	keys := splitKeys(cfg.ProxyAPIKey)
	if cfg.Env != "test" && len(keys) == 0 {
		return nil, errors.New("PROXY_API_KEY is required")
	}

	for i, key := range keys {
		if err := config.CheckPlaceholder("PROXY_API_KEY", key); err != nil {
			return nil, err
		}
		hash, err := hashKey(key)
		if err != nil {
			return nil, errors.Wrapf(err, "hash client key %d", i)
		}
		s.records = append(s.records, &Record{
			Name:       logger.Redact(key),
			Type:       TypeStaticKey,
			Hash:       hash,
			CostFactor: bcrypt.DefaultCost,
			CreatedAt:  s.nowFn(),
		})
	}

	return s, nil
}

func splitKeys(raw string) []string {
	var keys []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			keys = append(keys, part)
		}
	}
	return keys
}

func hashKey(key string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hashed), nil
}

func mustHash(key string) string {
	hash, err := hashKey(key)
	if err != nil {
		panic(err)
	}
	return hash
}

// Validate reports whether clientKey matches any configured record.
// Every record is compared regardless of earlier matches, and a dummy
// comparison runs whenever nothing matched, so the method's running
// time does not depend on which (if any) record matched — only on how
// many records are configured (spec §4.2).
func (s *Store) Validate(clientKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := -1
	for i, rec := range s.records {
		if compareConstantTime(rec.Hash, clientKey) {
			matched = i
		}
	}

	if matched < 0 {
		compareConstantTime(dummyHash, clientKey)
		return false
	}

	rec := s.records[matched]
	rec.LastUsedAt = s.nowFn()
	rec.UsageCount++
	return true
}

// compareConstantTime verifies clientKey against hexHash. bcrypt's own
// CompareHashAndPassword already runs in time independent of where the
// digests diverge; decoding the hex envelope first means a malformed or
// wrong-length hash still costs a full subtle.ConstantTimeCompare
// instead of short-circuiting on an early length check.
func compareConstantTime(hexHash, clientKey string) bool {
	raw, err := hex.DecodeString(hexHash)
	if err != nil {
		subtle.ConstantTimeCompare([]byte(hexHash), []byte(clientKey))
		return false
	}
	return bcrypt.CompareHashAndPassword(raw, []byte(clientKey)) == nil
}

// UpstreamHandle returns the opaque upstream credential selected at
// startup, for the dispatch backends to authenticate with.
func (s *Store) UpstreamHandle() UpstreamHandle {
	return s.upstream
}

// Len reports how many client credentials are configured, for /health
// diagnostics.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
