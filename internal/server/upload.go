package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hashtrail-project/hashtrail/internal/integrity"
	"github.com/hashtrail-project/hashtrail/pkg/errclass"
	"github.com/hashtrail-project/hashtrail/pkg/model"
	"github.com/hashtrail-project/hashtrail/pkg/pathutil"
)

// maxFieldBytes bounds a non-file form value.
const maxFieldBytes = 64 << 10

// upload is a streamed multipart body: one file part plus plain fields.
type upload struct {
	present  bool
	filename string
	digest   model.HashValue
	size     int64
	data     []byte
	fields   map[string]string
}

func (u *upload) field(name string) (string, bool) {
	v, ok := u.fields[name]
	return v, ok
}

// readUpload walks the multipart body once. The part named fileField is
// hashed as it streams in, so field order does not matter. When keep is set
// the file bytes are retained as well.
func (s *Server) readUpload(c *gin.Context, fileField string, keep bool) (*upload, error) {
	mr, err := c.Request.MultipartReader()
	if err != nil {
		return nil, errclass.ErrMalformedInput.WithMessage("expected a multipart/form-data body")
	}

	u := &upload{fields: make(map[string]string)}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, s.uploadError(err)
		}

		name := part.FormName()
		if name == fileField && !u.present {
			err = s.readFile(u, part.FileName(), part, keep)
		} else {
			var value []byte
			value, err = io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
			if err == nil && len(value) > maxFieldBytes {
				err = errclass.ErrMalformedInput.WithMessagef("form field %s is too large", name)
			}
			u.fields[name] = string(value)
		}
		part.Close()
		if err != nil {
			return nil, s.uploadError(err)
		}
	}

	if !u.present {
		return nil, errclass.ErrMalformedInput.WithMessagef("Missing required parameter: %s", fileField)
	}
	return u, nil
}

func (s *Server) readFile(u *upload, rawName string, r io.Reader, keep bool) error {
	name, err := pathutil.CleanFilename(rawName)
	if err != nil {
		return err
	}

	limited := &integrity.LimitedReader{R: r, Limit: s.cfg.Limits.MaxFileBytes()}
	if keep {
		data, err := io.ReadAll(limited)
		if err != nil {
			return err
		}
		u.data = data
		u.digest = integrity.Digest(data)
		u.size = int64(len(data))
	} else {
		digest, n, err := integrity.DigestReader(limited)
		if err != nil {
			return err
		}
		u.digest, u.size = digest, n
	}

	s.metrics.AddDigestBytes(integrity.SHA256.Name(), u.size)
	u.present = true
	u.filename = name
	return nil
}

// uploadError maps read failures onto error classes.
func (s *Server) uploadError(err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, integrity.ErrTooLarge), errors.As(err, &maxErr):
		return errclass.ErrPayloadTooLarge.WithMessagef("File too large. Maximum size is %dMB.", s.cfg.Limits.MaxFileSizeMB)
	case errclass.Code(err) != "":
		return err
	}
	return errclass.ErrMalformedInput.WithMessagef("read multipart body: %v", err)
}
