package gateway

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"tensormart.io/market/artifact"
	"tensormart.io/market/captoken"
	"tensormart.io/market/entitle"
	"tensormart.io/market/ledger"
	"tensormart.io/market/record"
)

type marketplaceView struct {
	Address        string `json:"address"`
	Authority      string `json:"authority"`
	Treasury       string `json:"treasury"`
	ProtocolFeeBps uint16 `json:"protocolFeeBps"`
	TotalModels    uint64 `json:"totalModels"`
}

type modelView struct {
	Address         string `json:"address"`
	Creator         string `json:"creator"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	ModelHash       string `json:"modelHash"`
	StorageURI      string `json:"storageUri"`
	ModelSize       uint64 `json:"modelSize"`
	InferencePrice  uint64 `json:"inferencePrice"`
	DownloadPrice   uint64 `json:"downloadPrice"`
	PaymentToken    uint8  `json:"paymentToken"`
	TotalInferences uint64 `json:"totalInferences"`
	TotalDownloads  uint64 `json:"totalDownloads"`
	TotalRevenue    uint64 `json:"totalRevenue"`
	IsActive        bool   `json:"isActive"`
	CreatedAt       int64  `json:"createdAt"`
	ModelID         uint64 `json:"modelId"`
}

type accessView struct {
	Address        string `json:"address"`
	User           string `json:"user"`
	Model          string `json:"model"`
	AccessType     string `json:"accessType"`
	PurchasedAt    int64  `json:"purchasedAt"`
	ExpiresAt      *int64 `json:"expiresAt"`
	InferenceCount uint64 `json:"inferenceCount"`
	IsActive       bool   `json:"isActive"`
	Status         string `json:"status"`
}

type usageView struct {
	User          string `json:"user"`
	Model         string `json:"model"`
	InferenceHash string `json:"inferenceHash"`
	Timestamp     int64  `json:"timestamp"`
}

func newModelView(addr ledger.Address, m *record.Model) modelView {
	return modelView{
		Address:         addr.String(),
		Creator:         m.Creator.String(),
		Name:            m.Name,
		Description:     m.Description,
		ModelHash:       m.ModelHash,
		StorageURI:      m.StorageURI,
		ModelSize:       m.ModelSize,
		InferencePrice:  m.InferencePrice,
		DownloadPrice:   m.DownloadPrice,
		PaymentToken:    uint8(m.PaymentToken),
		TotalInferences: m.TotalInferences,
		TotalDownloads:  m.TotalDownloads,
		TotalRevenue:    m.TotalRevenue,
		IsActive:        m.IsActive,
		CreatedAt:       m.CreatedAt,
		ModelID:         m.ModelID,
	}
}

func newAccessView(addr ledger.Address, a *record.Access, status entitle.Status) accessView {
	return accessView{
		Address:        addr.String(),
		User:           a.User.String(),
		Model:          a.Model.String(),
		AccessType:     a.AccessType.String(),
		PurchasedAt:    a.PurchasedAt,
		ExpiresAt:      a.ExpiresAt,
		InferenceCount: a.InferenceCount,
		IsActive:       a.IsActive,
		Status:         string(status),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"program":   s.program.String(),
	})
}

func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Principal string `json:"principal"`
		Signature string `json:"signature"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}
	principal, err := ledger.ParsePrincipal(req.Principal)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	sig, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "signature must be base64")
		return
	}
	if err := captoken.VerifyWalletSignature(principal, sig); err != nil {
		writeEngineError(w, err)
		return
	}
	token, err := s.signer.MintSession(principal, 0)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"expiresIn": int64(captoken.DefaultSessionTTL.Seconds()),
	})
}

func (s *Server) handleMarketplace(w http.ResponseWriter, r *http.Request) {
	d, err := ledger.DeriveMarketplace(s.program)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	blob, err := s.reader.GetByAddress(r.Context(), d.Address)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	m, err := record.DecodeMarketplace(blob)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, marketplaceView{
		Address:        d.Address.String(),
		Authority:      m.Authority.String(),
		Treasury:       m.Treasury.String(),
		ProtocolFeeBps: m.ProtocolFeeBps,
		TotalModels:    m.TotalModels,
	})
}

// scanModels runs a discriminator-filtered scan and decodes each entry,
// skipping undecodable records with a logged integrity warning.
func (s *Server) scanModels(r *http.Request, extra []ledger.MemcmpFilter) ([]modelView, error) {
	disc := record.KindModel.Discriminator()
	filters := append([]ledger.MemcmpFilter{{Offset: 0, Bytes: disc[:]}}, extra...)
	entries, err := s.reader.Scan(r.Context(), filters)
	if err != nil {
		return nil, err
	}
	views := make([]modelView, 0, len(entries))
	for _, ent := range entries {
		m, err := record.DecodeModel(ent.Data)
		if err != nil {
			s.log.Warn("skipping undecodable model record",
				zap.String("address", ent.Address.String()),
				zap.Error(err))
			continue
		}
		views = append(views, newModelView(ent.Address, m))
	}
	return views, nil
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	views, err := s.scanModels(r, nil)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": views, "count": len(views)})
}

func (s *Server) handleModelsByCreator(w http.ResponseWriter, r *http.Request) {
	creator, err := ledger.ParsePrincipal(chi.URLParam(r, "principal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	views, err := s.scanModels(r, []ledger.MemcmpFilter{{Offset: 8, Bytes: creator[:]}})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": views, "count": len(views)})
}

// fetchModel is the point lookup used by every model-scoped operation.
func (s *Server) fetchModel(r *http.Request, addr ledger.Address) (*record.Model, error) {
	blob, err := s.reader.GetByAddress(r.Context(), addr)
	if err != nil {
		return nil, err
	}
	return record.DecodeModel(blob)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	m, err := s.fetchModel(r, addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newModelView(addr, m))
}

func (s *Server) handleModelStats(w http.ResponseWriter, r *http.Request) {
	addr, err := ledger.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	m, err := s.fetchModel(r, addr)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"totalInferences": m.TotalInferences,
		"totalDownloads":  m.TotalDownloads,
		"totalRevenue":    m.TotalRevenue,
		"inferencePrice":  m.InferencePrice,
		"downloadPrice":   m.DownloadPrice,
		"isActive":        m.IsActive,
		"createdAt":       m.CreatedAt,
	})
}

func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	user, err := ledger.ParsePrincipal(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	model, err := ledger.ParseAddress(chi.URLParam(r, "model"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	res, err := s.evaluator.Check(r.Context(), user, model)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	body := map[string]any{
		"status":        string(res.Status),
		"hasAccess":     res.Valid(),
		"accessAddress": res.Address.String(),
	}
	if res.Record != nil {
		body["access"] = newAccessView(res.Address, res.Record, res.Status)
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListUserAccess(w http.ResponseWriter, r *http.Request) {
	user, err := ledger.ParsePrincipal(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	entries, err := s.evaluator.ListForUser(r.Context(), user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]accessView, 0, len(entries))
	for _, ent := range entries {
		views = append(views, newAccessView(ent.Address, ent.Record, ent.Status))
	}
	writeJSON(w, http.StatusOK, map[string]any{"accessRecords": views, "count": len(views)})
}

// requestPrincipal resolves the acting user: the session principal when
// authenticated, otherwise an explicit field in the request body.
func requestPrincipal(r *http.Request, bodyUser string) (ledger.Principal, error) {
	if p, ok := sessionPrincipal(r); ok {
		return p, nil
	}
	if bodyUser == "" {
		return ledger.Principal{}, fmt.Errorf("user is required")
	}
	return ledger.ParsePrincipal(bodyUser)
}

func (s *Server) handleRequestDownload(w http.ResponseWriter, r *http.Request) {
	model, err := ledger.ParseAddress(chi.URLParam(r, "model"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	var req struct {
		User string `json:"user"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	user, err := requestPrincipal(r, req.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	res, err := s.evaluator.Check(r.Context(), user, model)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !res.Valid() {
		writeDenial(w, res.Status)
		return
	}
	// Valid but wrong kind is its own failure: the user holds access,
	// just not the kind that permits downloads.
	if !entitle.HasDownloadRights(res.Record) {
		writeError(w, http.StatusForbidden, CodeWrongAccessType,
			"access type "+res.Record.AccessType.String()+" does not permit downloads")
		return
	}

	token, err := s.signer.MintDownload(model, user, s.downloadTTL)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"downloadUrl": fmt.Sprintf("%s/v1/download/%s?token=%s", s.baseURL, model, token),
		"expiresIn":   int64(s.downloadTTL.Seconds()),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	model, err := ledger.ParseAddress(chi.URLParam(r, "model"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	grant, err := s.signer.VerifyDownload(r.URL.Query().Get("token"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if grant.Model != model {
		writeError(w, http.StatusUnauthorized, CodeTokenInvalid, "token was issued for a different model")
		return
	}

	m, err := s.fetchModel(r, model)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	id, err := artifact.ParseURI(m.StorageURI)
	if err != nil {
		writeError(w, http.StatusBadGateway, CodeLedgerCorrupt, err.Error())
		return
	}
	data, err := s.store.Get(id)
	if artifact.IsNotFound(err) {
		writeError(w, http.StatusNotFound, CodeNotFound, "artifact not present in store")
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", m.Name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// inferenceFingerprint computes the advisory request fingerprint: a
// content hash over model, inputs and request time. It labels the audit
// trail only; execution is never deduplicated on it.
func inferenceFingerprint(model ledger.Address, inputs json.RawMessage, at time.Time) string {
	h := sha256.New()
	h.Write([]byte(model.String()))
	h.Write([]byte{0})
	h.Write(inputs)
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", at.UnixMilli())
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Server) handleRunInference(w http.ResponseWriter, r *http.Request) {
	model, err := ledger.ParseAddress(chi.URLParam(r, "model"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	var req struct {
		User   string          `json:"user"`
		Inputs json.RawMessage `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}
	if len(req.Inputs) == 0 {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "inputs are required")
		return
	}
	user, err := requestPrincipal(r, req.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	res, err := s.evaluator.Check(r.Context(), user, model)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if !res.Valid() {
		writeDenial(w, res.Status)
		return
	}

	m, err := s.fetchModel(r, model)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	// Inactive is terminal unavailability, not absence: the record exists
	// but its creator switched it off.
	if !m.IsActive {
		writeError(w, http.StatusConflict, CodeModelInactive, "model has been deactivated by its creator")
		return
	}

	now := time.Now()
	fingerprint := inferenceFingerprint(model, req.Inputs, now)

	outputs, err := s.runner.Run(r.Context(), model.String(), req.Inputs)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result":      outputs,
		"fingerprint": fingerprint,
		"model":       model.String(),
		"timestamp":   now.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleInferenceHistory(w http.ResponseWriter, r *http.Request) {
	user, err := ledger.ParsePrincipal(chi.URLParam(r, "user"))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	usages, err := s.evaluator.UsageForUser(r.Context(), user)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]usageView, 0, len(usages))
	for _, u := range usages {
		views = append(views, usageView{
			User:          u.User.String(),
			Model:         u.Model.String(),
			InferenceHash: u.InferenceHash,
			Timestamp:     u.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": views, "count": len(views)})
}

var allowedModelExtensions = map[string]bool{
	".onnx":   true,
	".pkl":    true,
	".pt":     true,
	".pth":    true,
	".h5":     true,
	".pb":     true,
	".tflite": true,
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("model")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "multipart field \"model\" is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedModelExtensions[ext] {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "unsupported model file type "+ext)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to read upload: "+err.Error())
		return
	}

	sum := sha256.Sum256(data)
	id, err := s.store.Put(data)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"modelHash":  hex.EncodeToString(sum[:]),
		"storageUri": artifact.FormatURI(id),
		"fileName":   header.Filename,
		"fileSize":   len(data),
	})
}
