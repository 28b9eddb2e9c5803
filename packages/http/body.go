package http

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/knurl/packages/core/apperror"
)

const boundaryPrefix = "----KnurlFormBoundary"

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// buildBody materializes the request payload and fixes up Content-Type.
func buildBody(req *Request, h http.Header) ([]byte, error) {
	switch {
	case len(req.Multipart) > 0:
		return BuildMultipartBody(req.Multipart, h)
	case req.BodyFile != "":
		data, err := os.ReadFile(req.BodyFile)
		if err != nil {
			return nil, apperror.Wrap(apperror.IoError, err, fmt.Sprintf("Failed to read body file '%s'", req.BodyFile))
		}
		if h.Get("Content-Type") == "" {
			if ct := guessContentType(req.BodyFile); ct != "" {
				h.Set("Content-Type", ct)
			}
		}
		return data, nil
	default:
		return req.Body, nil
	}
}

// guessContentType returns the media type registered for the file's
// extension without parameters, or "".
func guessContentType(path string) string {
	ct := mime.TypeByExtension(filepath.Ext(path))
	if ct == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return ct
}

// multipartBoundary picks the boundary: the one declared by an existing
// multipart Content-Type, else a generated one. It rewrites the header so
// it always names the boundary used.
func multipartBoundary(h http.Header) string {
	current := h.Get("Content-Type")
	if strings.Contains(strings.ToLower(current), "multipart/form-data") {
		if _, params, err := mime.ParseMediaType(current); err == nil && params["boundary"] != "" {
			return params["boundary"]
		}
		boundary := generateBoundary()
		h.Set("Content-Type", current+"; boundary="+boundary)
		return boundary
	}
	boundary := generateBoundary()
	h.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	return boundary
}

func generateBoundary() string {
	return boundaryPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// BuildMultipartBody encodes parts as multipart/form-data.
func BuildMultipartBody(parts []MultipartPart, h http.Header) ([]byte, error) {
	boundary := multipartBoundary(h)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.SetBoundary(boundary); err != nil {
		return nil, apperror.Wrap(apperror.BadRequest, err, fmt.Sprintf("Invalid multipart boundary %q", boundary))
	}

	for _, part := range parts {
		if part.Name == "" {
			return nil, apperror.New(apperror.BadRequest, "Multipart part is missing a name")
		}
		switch part.Kind {
		case PartFile:
			data, err := os.ReadFile(part.Path)
			if err != nil {
				return nil, apperror.Wrap(apperror.IoError, err, fmt.Sprintf("Failed to read file '%s'", part.Path))
			}
			w, err := writer.CreatePart(fileHeader(part))
			if err != nil {
				return nil, apperror.Wrap(apperror.IoError, err, "Failed to write multipart part")
			}
			if _, err := w.Write(data); err != nil {
				return nil, apperror.Wrap(apperror.IoError, err, "Failed to write multipart part")
			}
		default:
			hdr := make(textproto.MIMEHeader)
			hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(part.Name)))
			w, err := writer.CreatePart(hdr)
			if err != nil {
				return nil, apperror.Wrap(apperror.IoError, err, "Failed to write multipart part")
			}
			if _, err := w.Write([]byte(part.Value)); err != nil {
				return nil, apperror.Wrap(apperror.IoError, err, "Failed to write multipart part")
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, apperror.Wrap(apperror.IoError, err, "Failed to finish multipart body")
	}
	return body.Bytes(), nil
}

func fileHeader(part MultipartPart) textproto.MIMEHeader {
	filename := part.Filename
	if filename == "" {
		filename = filepath.Base(part.Path)
		if filename == "." || filename == string(filepath.Separator) {
			filename = "file"
		}
	}

	disposition := fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(part.Name), quoteEscaper.Replace(filename))
	if !isASCII(filename) {
		disposition += "; filename*=UTF-8''" + percentEncode(filename)
	}

	ct := strings.TrimSpace(part.ContentType)
	if ct == "" {
		ct = guessContentType(filename)
	}
	if ct == "" {
		ct = "application/octet-stream"
	}

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", disposition)
	hdr.Set("Content-Type", ct)
	return hdr
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// percentEncode escapes every byte that is not an ASCII letter or digit.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}
