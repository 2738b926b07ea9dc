package record

import (
	"encoding/binary"
	"unicode/utf8"

	"tensormart.io/market/ledger"
)

// Limits on variable-length fields, matching what the program will accept
// when records are written. Decoding enforces them as a corruption guard:
// a length prefix beyond the limit can only come from a damaged or
// mis-tagged blob.
const (
	maxNameLen        = 100
	maxDescriptionLen = 500
	maxHashLen        = 64
	maxURILen         = 200
)

// DecodeMarketplace decodes blob as a marketplace record.
func DecodeMarketplace(blob []byte) (*Marketplace, error) {
	r, err := newReader(blob, KindMarketplace)
	if err != nil {
		return nil, err
	}
	var m Marketplace
	if m.Authority, err = r.principal("authority"); err != nil {
		return nil, err
	}
	if m.Treasury, err = r.principal("treasury"); err != nil {
		return nil, err
	}
	if m.ProtocolFeeBps, err = r.u16("protocolFeeBps"); err != nil {
		return nil, err
	}
	if m.TotalModels, err = r.u64("totalModels"); err != nil {
		return nil, err
	}
	if m.Bump, err = r.u8("bump"); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeModel decodes blob as a model record.
func DecodeModel(blob []byte) (*Model, error) {
	r, err := newReader(blob, KindModel)
	if err != nil {
		return nil, err
	}
	var m Model
	if m.Creator, err = r.principal("creator"); err != nil {
		return nil, err
	}
	if m.Name, err = r.str("name", maxNameLen); err != nil {
		return nil, err
	}
	if m.Description, err = r.str("description", maxDescriptionLen); err != nil {
		return nil, err
	}
	if m.ModelHash, err = r.str("modelHash", maxHashLen); err != nil {
		return nil, err
	}
	if m.StorageURI, err = r.str("storageUri", maxURILen); err != nil {
		return nil, err
	}
	if m.ModelSize, err = r.u64("modelSize"); err != nil {
		return nil, err
	}
	if m.InferencePrice, err = r.u64("inferencePrice"); err != nil {
		return nil, err
	}
	if m.DownloadPrice, err = r.u64("downloadPrice"); err != nil {
		return nil, err
	}
	tok, err := r.enum("paymentToken", uint8(PaymentToken2022))
	if err != nil {
		return nil, err
	}
	m.PaymentToken = PaymentToken(tok)
	if m.TotalInferences, err = r.u64("totalInferences"); err != nil {
		return nil, err
	}
	if m.TotalDownloads, err = r.u64("totalDownloads"); err != nil {
		return nil, err
	}
	if m.TotalRevenue, err = r.u64("totalRevenue"); err != nil {
		return nil, err
	}
	if m.IsActive, err = r.boolean("isActive"); err != nil {
		return nil, err
	}
	if m.CreatedAt, err = r.i64("createdAt"); err != nil {
		return nil, err
	}
	if m.ModelID, err = r.u64("modelId"); err != nil {
		return nil, err
	}
	if m.Bump, err = r.u8("bump"); err != nil {
		return nil, err
	}
	return &m, nil
}

// DecodeAccess decodes blob as an access record.
func DecodeAccess(blob []byte) (*Access, error) {
	r, err := newReader(blob, KindAccess)
	if err != nil {
		return nil, err
	}
	var a Access
	if a.User, err = r.principal("user"); err != nil {
		return nil, err
	}
	model, err := r.principal("model")
	if err != nil {
		return nil, err
	}
	a.Model = ledger.Address(model)
	typ, err := r.enum("accessType", uint8(AccessSubscription))
	if err != nil {
		return nil, err
	}
	a.AccessType = AccessType(typ)
	if a.PurchasedAt, err = r.i64("purchasedAt"); err != nil {
		return nil, err
	}
	if a.ExpiresAt, err = r.optionI64("expiresAt"); err != nil {
		return nil, err
	}
	if a.InferenceCount, err = r.u64("inferenceCount"); err != nil {
		return nil, err
	}
	if a.IsActive, err = r.boolean("isActive"); err != nil {
		return nil, err
	}
	if a.Bump, err = r.u8("bump"); err != nil {
		return nil, err
	}
	return &a, nil
}

// DecodeUsage decodes blob as a usage record.
func DecodeUsage(blob []byte) (*Usage, error) {
	r, err := newReader(blob, KindUsage)
	if err != nil {
		return nil, err
	}
	var u Usage
	if u.User, err = r.principal("user"); err != nil {
		return nil, err
	}
	model, err := r.principal("model")
	if err != nil {
		return nil, err
	}
	u.Model = ledger.Address(model)
	if u.InferenceHash, err = r.str("inferenceHash", maxHashLen); err != nil {
		return nil, err
	}
	if u.Timestamp, err = r.i64("timestamp"); err != nil {
		return nil, err
	}
	if u.Bump, err = r.u8("bump"); err != nil {
		return nil, err
	}
	return &u, nil
}

// reader walks a blob field by field. Trailing bytes after the last field
// are tolerated: the ledger over-allocates accounts and pads with zeros.
type reader struct {
	buf []byte
	off int
}

func newReader(blob []byte, expect EntityKind) (*reader, error) {
	want := expect.Discriminator()
	if len(blob) < len(want) {
		return nil, newError(KindTruncated, "discriminator", "blob of %d bytes is shorter than the discriminator", len(blob))
	}
	var got ledger.Discriminator
	copy(got[:], blob[:8])
	if got != want {
		return nil, newError(KindWrongKind, "discriminator", "blob is not a %s record", expect)
	}
	return &reader{buf: blob, off: 8}, nil
}

func (r *reader) take(field string, n int) ([]byte, error) {
	if r.off+n > len(r.buf) {
		return nil, newError(KindTruncated, field, "need %d bytes at offset %d, have %d", n, r.off, len(r.buf)-r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) principal(field string) (ledger.Principal, error) {
	var p ledger.Principal
	b, err := r.take(field, 32)
	if err != nil {
		return p, err
	}
	copy(p[:], b)
	return p, nil
}

func (r *reader) u8(field string) (uint8, error) {
	b, err := r.take(field, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16(field string) (uint16, error) {
	b, err := r.take(field, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32(field string) (uint32, error) {
	b, err := r.take(field, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64(field string) (uint64, error) {
	b, err := r.take(field, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) i64(field string) (int64, error) {
	v, err := r.u64(field)
	return int64(v), err
}

func (r *reader) boolean(field string) (bool, error) {
	b, err := r.take(field, 1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, newError(KindInvalidEnumTag, field, "bool tag %d", b[0])
	}
}

func (r *reader) enum(field string, maxTag uint8) (uint8, error) {
	b, err := r.take(field, 1)
	if err != nil {
		return 0, err
	}
	if b[0] > maxTag {
		return 0, newError(KindInvalidEnumTag, field, "enum tag %d outside [0,%d]", b[0], maxTag)
	}
	return b[0], nil
}

func (r *reader) str(field string, maxLen int) (string, error) {
	n, err := r.u32(field)
	if err != nil {
		return "", err
	}
	if int(n) > maxLen {
		return "", newError(KindTruncated, field, "length prefix %d exceeds limit %d", n, maxLen)
	}
	b, err := r.take(field, int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", newError(KindTruncated, field, "string is not valid UTF-8")
	}
	return string(b), nil
}

func (r *reader) optionI64(field string) (*int64, error) {
	b, err := r.take(field, 1)
	if err != nil {
		return nil, err
	}
	switch b[0] {
	case 0:
		return nil, nil
	case 1:
		v, err := r.i64(field)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, newError(KindInvalidEnumTag, field, "option tag %d", b[0])
	}
}
