package dto

import "time"

// CreateUploadRequest asks for a signed upload slot for a PDF.
type CreateUploadRequest struct {
	FileName    string `json:"file_name" binding:"required,max=255,safe_filename"`
	FileSize    int64  `json:"file_size" binding:"required"`
	ContentType string `json:"content_type" binding:"required"`
}

// CreateUploadResponse returns the reserved storage key and signed token the
// client uses to push bytes and then confirm the upload.
type CreateUploadResponse struct {
	FileKey     string    `json:"file_key"`
	UploadToken string    `json:"upload_token"`
	UploadURL   string    `json:"upload_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// CompleteUploadRequest confirms the bytes landed and triggers processing.
// FileName echoes the original name so the module can default its title.
type CompleteUploadRequest struct {
	UploadToken string `json:"upload_token" binding:"required"`
	FileName    string `json:"file_name" binding:"required,max=255,safe_filename"`
	Title       string `json:"title" binding:"max=200"`
	Description string `json:"description" binding:"max=2000"`
}
