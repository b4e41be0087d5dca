package file

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmlabs-hris/studio-payroll/internal/domain/payroll"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/storage"
	"github.com/cmlabs-hris/studio-payroll/internal/pkg/validator"
	"github.com/google/uuid"
)

// MaxProofSize caps a single transfer-proof upload.
const MaxProofSize = 5 << 20

var proofContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// FileService stores payroll transfer proofs on the configured file storage
type FileService interface {
	payroll.ProofStore
}

type fileServiceImpl struct {
	storage storage.FileStorage
	now     func() time.Time
}

func NewFileService(storage storage.FileStorage) FileService {
	return &fileServiceImpl{
		storage: storage,
		now:     time.Now,
	}
}

// UploadTransferProof stores a bank-transfer receipt for a slip.
// Only PDF, JPEG and PNG files are accepted; the declared extension must match the content.
func (s *fileServiceImpl) UploadTransferProof(ctx context.Context, slipID string, file io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := proofContentTypes[ext]
	if !ok {
		return "", validator.ValidationErrors{{Field: "proof", Message: "invalid file type: only pdf, jpg, jpeg, png allowed"}}
	}

	// Sniff the first bytes without consuming them
	reader := bufio.NewReaderSize(io.LimitReader(file, MaxProofSize+1), 512)
	head, _ := reader.Peek(512)
	if detected := http.DetectContentType(head); detected != contentType {
		return "", validator.ValidationErrors{{Field: "proof", Message: fmt.Sprintf("file content does not match %s", ext)}}
	}

	counted := &countingReader{r: reader}
	key := path.Join("payroll", "proofs", slipID, fmt.Sprintf("%d-%s%s", s.now().Unix(), uuid.New().String(), ext))

	uploadedPath, err := s.storage.Upload(ctx, counted, key, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to upload transfer proof: %w", err)
	}
	if counted.n > MaxProofSize {
		_ = s.storage.Delete(ctx, uploadedPath)
		return "", validator.ValidationErrors{{Field: "proof", Message: "file exceeds 5MB"}}
	}

	return uploadedPath, nil
}

// DeleteTransferProof removes a proof whose slip edit did not commit
func (s *fileServiceImpl) DeleteTransferProof(ctx context.Context, ref string) error {
	if err := s.storage.Delete(ctx, ref); err != nil {
		return fmt.Errorf("failed to delete transfer proof: %w", err)
	}
	return nil
}

func (s *fileServiceImpl) TransferProofURL(ref string) string {
	return s.storage.URL(ref)
}

// ==================== HELPER FUNCTIONS ====================

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
