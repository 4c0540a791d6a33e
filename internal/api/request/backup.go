package request

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/edvin/safehouse/internal/model"
)

type CreateBackupJob struct {
	Type string `json:"type" validate:"required,oneof=database files full"`
}

// Confirm carries the explicit confirmation destructive commands require.
type Confirm struct {
	Confirm bool `json:"confirm"`
}

// DecodeConfirm reads confirmation from ?confirm= or a JSON body. A missing
// body is the same as confirm=false.
func DecodeConfirm(r *http.Request) (bool, error) {
	if v := r.URL.Query().Get("confirm"); v != "" {
		confirmed, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("invalid confirm value %q", v)
		}
		return confirmed, nil
	}
	if r.Body == nil || r.ContentLength == 0 {
		return false, nil
	}
	var req Confirm
	if err := Decode(r, &req); err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	return req.Confirm, nil
}

// uploadOverhead is the multipart framing allowed on top of the file itself.
const uploadOverhead = 1 << 20

// ReadUpload reads the "file" part of a multipart upload. Bodies larger than
// maxBytes plus framing are cut off before they are buffered.
func ReadUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (model.UploadFile, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+uploadOverhead)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.UploadFile{}, fmt.Errorf("upload exceeds %d bytes", maxBytes)
		}
		return model.UploadFile{}, fmt.Errorf("missing file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return model.UploadFile{}, fmt.Errorf("read upload: %w", err)
	}
	return model.UploadFile{
		Filename: header.Filename,
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}
