package imapfetch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"maildigest/core/domain"
	"maildigest/pkg/apperr"
	"maildigest/pkg/logger"
)

const MaxAttachmentSize = 50 * 1024 * 1024

var dangerousExtensions = map[string]struct{}{
	".exe": {}, ".bat": {}, ".cmd": {}, ".com": {}, ".pif": {}, ".scr": {},
	".vbs": {}, ".js": {}, ".jar": {}, ".msi": {}, ".dll": {}, ".sys": {},
	".scf": {}, ".lnk": {}, ".reg": {}, ".ps1": {},
}

var allowedExtensions = map[string]struct{}{
	// documents
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".txt": {}, ".rtf": {}, ".csv": {}, ".xml": {}, ".json": {}, ".md": {}, ".html": {}, ".htm": {},
	// images
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".tiff": {}, ".webp": {}, ".svg": {}, ".ico": {},
	// audio/video
	".mp3": {}, ".wav": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".flv": {}, ".mkv": {}, ".m4a": {}, ".aac": {},
	// archives
	".zip": {}, ".rar": {}, ".7z": {}, ".tar": {}, ".gz": {}, ".bz2": {}, ".xz": {},
	// calendar and contacts
	".ics": {}, ".vcf": {}, ".vcard": {},
	// source and config
	".py": {}, ".css": {}, ".sql": {}, ".log": {}, ".conf": {}, ".ini": {}, ".cfg": {},
	// mail containers
	".eml": {}, ".msg": {}, ".mbox": {},
}

var windowsReserved = map[string]struct{}{
	"CON": {}, "PRN": {}, "AUX": {}, "NUL": {},
	"COM1": {}, "COM2": {}, "COM3": {}, "COM4": {}, "COM5": {}, "COM6": {}, "COM7": {}, "COM8": {}, "COM9": {},
	"LPT1": {}, "LPT2": {}, "LPT3": {}, "LPT4": {}, "LPT5": {}, "LPT6": {}, "LPT7": {}, "LPT8": {}, "LPT9": {},
}

// CheckFilename applies the filename policy. The returned error carries the
// rejection reason.
func CheckFilename(filename string) error {
	filename = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(filename, "\n", ""), "\r", ""))
	if filename == "" {
		return apperr.AttachmentRejected(filename, "empty filename")
	}
	if len(filename) > 255 {
		return apperr.AttachmentRejected(filename, "filename too long")
	}
	if strings.ContainsAny(filename, `<>:"|?*`) || strings.ContainsRune(filename, 0) {
		return apperr.AttachmentRejected(filename, "forbidden character")
	}
	if strings.Contains(filename, "..") || strings.HasPrefix(filename, "/") || strings.HasPrefix(filename, `\`) {
		return apperr.AttachmentRejected(filename, "path traversal")
	}

	ext := strings.ToLower(filepath.Ext(filename))
	stem := strings.ToUpper(strings.TrimSuffix(filename, filepath.Ext(filename)))
	if _, ok := windowsReserved[stem]; ok {
		return apperr.AttachmentRejected(filename, "reserved filename")
	}
	if _, ok := dangerousExtensions[ext]; ok {
		return apperr.AttachmentRejected(filename, "dangerous extension")
	}
	if ext == "" {
		return apperr.AttachmentRejected(filename, "missing extension")
	}
	if _, ok := allowedExtensions[ext]; !ok {
		return apperr.AttachmentRejected(filename, "extension not allowed")
	}
	return nil
}

// AttachmentStore persists accepted attachment payloads under
// <base>/user_<user_id>/.
type AttachmentStore struct {
	baseDir string
	log     zerolog.Logger
}

func NewAttachmentStore(baseDir string) *AttachmentStore {
	if baseDir == "" {
		baseDir = "attachments"
	}
	return &AttachmentStore{
		baseDir: baseDir,
		log:     logger.Component("attachments"),
	}
}

// Save checks the policy and writes the payload. The stored name is
// <cleaned_uid>_<8-hex-uuid><ext> so concurrent saves never collide.
func (s *AttachmentStore) Save(userID int64, emailUID, filename, contentType string, payload []byte) (domain.Attachment, error) {
	filename = strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(filename, "\n", ""), "\r", ""))
	if err := CheckFilename(filename); err != nil {
		return domain.Attachment{}, err
	}
	if len(payload) > MaxAttachmentSize {
		return domain.Attachment{}, apperr.AttachmentRejected(filename, fmt.Sprintf("size %d exceeds limit", len(payload)))
	}

	dir := filepath.Join(s.baseDir, fmt.Sprintf("user_%d", userID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Attachment{}, apperr.StoreFailed("attachment dir", err)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	stored := fmt.Sprintf("%s_%s%s", cleanUID(emailUID), uuid.NewString()[:8], ext)
	path := filepath.Join(dir, stored)

	if err := os.WriteFile(path, payload, 0o644); err != nil {
		os.Remove(path)
		return domain.Attachment{}, apperr.StoreFailed("attachment write", err)
	}

	s.log.Info().Str("filename", filename).Str("stored", stored).Int("size", len(payload)).Msg("attachment saved")

	return domain.Attachment{
		OriginalFilename: filename,
		StoredFilename:   stored,
		StoredPath:       path,
		ContentType:      contentType,
		Size:             int64(len(payload)),
	}, nil
}

// cleanUID keeps the numeric tail of an email id and strips anything that
// is not filesystem safe.
func cleanUID(emailUID string) string {
	if i := strings.LastIndex(emailUID, ":"); i >= 0 {
		emailUID = emailUID[i+1:]
	}
	var b strings.Builder
	for _, r := range emailUID {
		if r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if len(cleaned) > 20 {
		cleaned = cleaned[:20]
	}
	if cleaned == "" {
		cleaned = "msg"
	}
	return cleaned
}
