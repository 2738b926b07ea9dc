package record

import "encoding/binary"

// Encoders produce blobs byte-identical to what the program writes. The
// engine never writes records to the ledger; these exist for fixtures,
// in-memory ledger fakes and round-trip tests.

// EncodeMarketplace serializes m with its discriminator.
func EncodeMarketplace(m *Marketplace) []byte {
	w := newWriter(KindMarketplace)
	w.bytes(m.Authority[:])
	w.bytes(m.Treasury[:])
	w.u16(m.ProtocolFeeBps)
	w.u64(m.TotalModels)
	w.u8(m.Bump)
	return w.buf
}

// EncodeModel serializes m with its discriminator.
func EncodeModel(m *Model) []byte {
	w := newWriter(KindModel)
	w.bytes(m.Creator[:])
	w.str(m.Name)
	w.str(m.Description)
	w.str(m.ModelHash)
	w.str(m.StorageURI)
	w.u64(m.ModelSize)
	w.u64(m.InferencePrice)
	w.u64(m.DownloadPrice)
	w.u8(uint8(m.PaymentToken))
	w.u64(m.TotalInferences)
	w.u64(m.TotalDownloads)
	w.u64(m.TotalRevenue)
	w.boolean(m.IsActive)
	w.i64(m.CreatedAt)
	w.u64(m.ModelID)
	w.u8(m.Bump)
	return w.buf
}

// EncodeAccess serializes a with its discriminator.
func EncodeAccess(a *Access) []byte {
	w := newWriter(KindAccess)
	w.bytes(a.User[:])
	w.bytes(a.Model[:])
	w.u8(uint8(a.AccessType))
	w.i64(a.PurchasedAt)
	w.optionI64(a.ExpiresAt)
	w.u64(a.InferenceCount)
	w.boolean(a.IsActive)
	w.u8(a.Bump)
	return w.buf
}

// EncodeUsage serializes u with its discriminator.
func EncodeUsage(u *Usage) []byte {
	w := newWriter(KindUsage)
	w.bytes(u.User[:])
	w.bytes(u.Model[:])
	w.str(u.InferenceHash)
	w.i64(u.Timestamp)
	w.u8(u.Bump)
	return w.buf
}

type writer struct {
	buf []byte
}

func newWriter(kind EntityKind) *writer {
	d := kind.Discriminator()
	return &writer{buf: append([]byte(nil), d[:]...)}
}

func (w *writer) bytes(b []byte) { w.buf = append(w.buf, b...) }
func (w *writer) u8(v uint8)     { w.buf = append(w.buf, v) }

func (w *writer) u16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

func (w *writer) u64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *writer) i64(v int64) { w.u64(uint64(v)) }

func (w *writer) boolean(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *writer) str(s string) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) optionI64(v *int64) {
	if v == nil {
		w.u8(0)
		return
	}
	w.u8(1)
	w.i64(*v)
}
