package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hashtrail-project/hashtrail/internal/integrity"
	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/model"
)

// abortWithError answers with the status of err's class and a detail body.
func abortWithError(c *gin.Context, err error) {
	status := errclass.HTTPStatus(err)
	body := gin.H{"detail": detail(err, status)}
	if code := errclass.Code(err); code != "" {
		body["code"] = code
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func detail(err error, status int) string {
	var e *errclass.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if status == http.StatusInternalServerError {
		return "Internal server error: " + err.Error()
	}
	return err.Error()
}

func requiredForm(c *gin.Context, name string) (string, error) {
	v, ok := c.GetPostForm(name)
	if !ok || v == "" {
		return "", errclass.ErrMalformedInput.WithMessagef("Missing required parameter: %s", name)
	}
	return v, nil
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to the hashtrail API"})
}

type chainHealth struct {
	Valid      bool `json:"valid"`
	BlockCount int  `json:"block_count"`
}

type healthConfig struct {
	MaxFileSize string `json:"max_file_size"`
	RateLimit   string `json:"rate_limit"`
}

type healthResponse struct {
	Status     string       `json:"status"`
	Timestamp  string       `json:"timestamp"`
	Port       string       `json:"port"`
	Version    string       `json:"version"`
	Blockchain chainHealth  `json:"blockchain"`
	Config     healthConfig `json:"config"`
}

// HealthStatus values.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.rec.Chain()
	res := s.rec.ValidateSnapshot(snap)

	status := StatusHealthy
	if !res.Valid {
		status = StatusDegraded
	}
	rate := 0
	if s.cfg.RateLimit.Enabled {
		rate = s.cfg.RateLimit.PerMinute
	}
	c.JSON(http.StatusOK, healthResponse{
		Status:     status,
		Timestamp:  time.Now().UTC().Format(model.TimestampLayout),
		Port:       strconv.Itoa(s.cfg.Server.Port),
		Version:    s.version,
		Blockchain: chainHealth{Valid: res.Valid, BlockCount: snap.Len()},
		Config: healthConfig{
			MaxFileSize: strconv.Itoa(s.cfg.Limits.MaxFileSizeMB),
			RateLimit:   strconv.Itoa(rate),
		},
	})
}

func (s *Server) handleLive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) handleReady(c *gin.Context) {
	res := s.rec.ValidateChain()
	if !res.Valid {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "invalid_block": res.InvalidIndex})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

type hashResponse struct {
	Status     string          `json:"status"`
	Filename   string          `json:"filename"`
	Hash       model.HashValue `json:"hash"`
	BlockHash  model.HashValue `json:"block_hash"`
	BlockIndex int             `json:"block_index"`
	Timestamp  string          `json:"timestamp"`
}

func (s *Server) handleHash(c *gin.Context) {
	u, err := s.readUpload(c, "file", false)
	if err != nil {
		abortWithError(c, err)
		return
	}

	b, err := s.rec.RecordOperation(c.Request.Context(), model.OpHash, u.filename, string(u.digest))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, hashResponse{
		Status:     "success",
		Filename:   b.Filename,
		Hash:       u.digest,
		BlockHash:  b.BlockHash,
		BlockIndex: b.Index,
		Timestamp:  b.Timestamp,
	})
}

type verifyResponse struct {
	Status      string          `json:"status"`
	Filename    string          `json:"filename"`
	CurrentHash model.HashValue `json:"current_hash"`
	StoredHash  string          `json:"stored_hash"`
	BlockHash   model.HashValue `json:"block_hash"`
	BlockIndex  int             `json:"block_index"`
	Timestamp   string          `json:"timestamp"`
	Message     string          `json:"message"`
}

func (s *Server) handleVerify(c *gin.Context) {
	u, err := s.readUpload(c, "file", false)
	if err != nil {
		abortWithError(c, err)
		return
	}
	stored, _ := u.field("stored_hash")
	stored = strings.TrimSpace(stored)
	if stored == "" {
		abortWithError(c, errclass.ErrMalformedInput.WithMessage("Missing required parameter: stored_hash"))
		return
	}

	b, err := s.rec.RecordVerification(c.Request.Context(), u.filename, u.digest, stored)
	if err != nil {
		abortWithError(c, err)
		return
	}
	message := "File tampering detected"
	if b.Result == model.ResultValid {
		message = "File integrity verified"
	}
	c.JSON(http.StatusOK, verifyResponse{
		Status:      b.Result,
		Filename:    b.Filename,
		CurrentHash: u.digest,
		StoredHash:  stored,
		BlockHash:   b.BlockHash,
		BlockIndex:  b.Index,
		Timestamp:   b.Timestamp,
		Message:     message,
	})
}

type logResponse struct {
	Status              string        `json:"status"`
	BlockCount          int           `json:"block_count"`
	ChainValidityStatus string        `json:"chain_validity_status"`
	Blocks              []model.Block `json:"blocks"`
}

func (s *Server) handleBlockchainLog(c *gin.Context) {
	snap := s.rec.Chain()
	res := s.rec.ValidateSnapshot(snap)

	validity := model.ResultValid
	if !res.Valid {
		validity = model.ResultInvalid
	}
	c.JSON(http.StatusOK, logResponse{
		Status:              "success",
		BlockCount:          snap.Len(),
		ChainValidityStatus: validity,
		Blocks:              snap.Newest(),
	})
}

func (s *Server) handleValidateChain(c *gin.Context) {
	res := s.rec.ValidateChain()
	c.JSON(http.StatusOK, gin.H{"valid": res.Valid, "invalid_block": res.InvalidIndex})
}

type hashCheckResponse struct {
	Valid          bool            `json:"is_valid"`
	CalculatedHash model.HashValue `json:"calculated_hash"`
	ProvidedHash   string          `json:"provided_hash"`
	Algorithm      string          `json:"algorithm"`
}

func (s *Server) handleVerifyHash(c *gin.Context) {
	data, err := requiredForm(c, "data")
	if err != nil {
		abortWithError(c, err)
		return
	}
	provided, err := requiredForm(c, "hash_value")
	if err != nil {
		abortWithError(c, err)
		return
	}
	algorithm := c.DefaultPostForm("algorithm", "sha256")

	h, err := integrity.LookupAlgorithm(algorithm)
	if err != nil {
		abortWithError(c, err)
		return
	}
	calculated := integrity.DigestWith(h, []byte(data))
	s.metrics.AddDigestBytes(h.Name(), int64(len(data)))

	c.JSON(http.StatusOK, hashCheckResponse{
		Valid:          integrity.Equal(calculated, model.HashValue(provided)),
		CalculatedHash: calculated,
		ProvidedHash:   provided,
		Algorithm:      algorithm,
	})
}

func (s *Server) handleVerifyFileHash(c *gin.Context) {
	u, err := s.readUpload(c, "file", false)
	if err != nil {
		abortWithError(c, err)
		return
	}

	body := gin.H{
		"filename":        u.filename,
		"file_size_bytes": u.size,
		"calculated_hash": u.digest,
	}
	if expected, _ := u.field("expected_hash"); expected != "" {
		body["is_valid"] = integrity.Equal(u.digest, model.HashValue(expected))
		body["expected_hash"] = expected
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handleVerifyMerkleProof(c *gin.Context) {
	data, err := requiredForm(c, "data")
	if err != nil {
		abortWithError(c, err)
		return
	}
	root, err := requiredForm(c, "merkle_root")
	if err != nil {
		abortWithError(c, err)
		return
	}
	raw, err := requiredForm(c, "proof")
	if err != nil {
		abortWithError(c, err)
		return
	}

	proof, err := integrity.ParseProof(raw)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, integrity.VerifyMerkleProof([]byte(data), proof, model.HashValue(root)))
}

// transactionFields must be present in a submitted transaction.
var transactionFields = []string{"sender", "receiver", "amount", "timestamp"}

// minSignatureLen is the shortest signature accepted as plausible. Only the
// length is checked; no cryptographic verification takes place.
const minSignatureLen = 11

func (s *Server) handleVerifyTransaction(c *gin.Context) {
	u, err := s.readUpload(c, "transaction_file", true)
	if err != nil {
		abortWithError(c, err)
		return
	}

	var tx map[string]any
	if err := json.Unmarshal(u.data, &tx); err != nil || tx == nil {
		abortWithError(c, errclass.ErrMalformedInput.WithMessage("Invalid JSON format"))
		return
	}

	var missing []string
	for _, f := range transactionFields {
		if _, ok := tx[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"is_valid": false,
			"error":    "Missing required fields: " + strings.Join(missing, ", "),
		})
		return
	}

	var signatureValid *bool
	if sig, _ := u.field("signature"); sig != "" {
		ok := len(sig) >= minSignatureLen
		signatureValid = &ok
	}
	c.JSON(http.StatusOK, gin.H{
		"is_valid":        true,
		"transaction":     tx,
		"signature_valid": signatureValid,
	})
}
