// Package record decodes the fixed binary layouts of the four marketplace
// account kinds. Decoding is pure: no I/O, no clock, no logging.
//
// Wire format: an 8-byte discriminator followed by fields in declaration
// order. Integers are little-endian fixed width, strings are u32
// length-prefixed UTF-8, optional fields carry a one-byte presence flag,
// and enums are one-byte tags drawn from a closed set.
package record

import (
	"crypto/sha256"

	"tensormart.io/market/ledger"
)

// EntityKind selects one of the four record layouts. The zero value is
// intentionally invalid.
type EntityKind uint8

const (
	KindMarketplace EntityKind = iota + 1
	KindModel
	KindAccess
	KindUsage
)

func (k EntityKind) String() string {
	switch k {
	case KindMarketplace:
		return "marketplace"
	case KindModel:
		return "model"
	case KindAccess:
		return "access"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// accountName is the program-side struct name the discriminator is
// computed from.
func (k EntityKind) accountName() string {
	switch k {
	case KindMarketplace:
		return "Marketplace"
	case KindModel:
		return "Model"
	case KindAccess:
		return "Access"
	case KindUsage:
		return "Usage"
	default:
		return ""
	}
}

// Discriminator returns the 8-byte tag leading every account of kind k:
// the first 8 bytes of sha256("account:" + Name).
func (k EntityKind) Discriminator() ledger.Discriminator {
	var d ledger.Discriminator
	sum := sha256.Sum256([]byte("account:" + k.accountName()))
	copy(d[:], sum[:8])
	return d
}

// PaymentToken selects the currency a model is priced in.
type PaymentToken uint8

const (
	PaymentNative PaymentToken = iota
	PaymentToken2022
)

// AccessType classifies what an access record entitles its holder to.
type AccessType uint8

const (
	AccessInference AccessType = iota
	AccessDownload
	AccessSubscription
)

func (t AccessType) String() string {
	switch t {
	case AccessInference:
		return "inference"
	case AccessDownload:
		return "download"
	case AccessSubscription:
		return "subscription"
	default:
		return "unknown"
	}
}

// Marketplace is the singleton configuration record, one per deployment.
type Marketplace struct {
	Authority      ledger.Principal
	Treasury       ledger.Principal
	ProtocolFeeBps uint16
	TotalModels    uint64
	Bump           uint8
}

// Model is one listed model. Mutated externally by purchase, inference and
// download events; this engine only reads snapshots.
type Model struct {
	Creator         ledger.Principal
	Name            string
	Description     string
	ModelHash       string
	StorageURI      string
	ModelSize       uint64
	InferencePrice  uint64
	DownloadPrice   uint64
	PaymentToken    PaymentToken
	TotalInferences uint64
	TotalDownloads  uint64
	TotalRevenue    uint64
	IsActive        bool
	CreatedAt       int64
	ModelID         uint64
	Bump            uint8
}

// Access records one principal's entitlement to one model. The address is
// derived from the (user, model) pair, so at most one live record exists
// per pair.
type Access struct {
	User           ledger.Principal
	Model          ledger.Address
	AccessType     AccessType
	PurchasedAt    int64
	ExpiresAt      *int64 // nil means non-expiring
	InferenceCount uint64
	IsActive       bool
	Bump           uint8
}

// Usage is one append-only audit entry per (user, model, inference) triple.
type Usage struct {
	User          ledger.Principal
	Model         ledger.Address
	InferenceHash string
	Timestamp     int64
	Bump          uint8
}
