package catalog

import (
	"fmt"
	"path"
	"strings"
)

type FileKind string

const (
	KindDocument FileKind = "document"
	KindPhoto    FileKind = "photo"
	KindVideo    FileKind = "video"
)

const (
	photoExt          = ".jpg"
	videoExt          = ".mp4"
	unnamedUploadName = "material.dat"
)

// File is an incoming attachment as declared by the transport.
type File struct {
	Kind FileKind
	Ref  string
	Name string
	MIME string
}

// FilePolicy is an allow-list of document extensions and content types.
type FilePolicy struct {
	Extensions []string
	MIMETypes  []string
}

var documentExtensions = []string{".pdf", ".doc", ".docx", ".ppt", ".pptx", ".txt"}

var allowedMIMETypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/plain",
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"video/mp4",
	"video/avi",
	"video/quicktime",
	"video/x-ms-wmv",
	"video/x-flv",
	"video/mpeg",
}

var (
	UploadPolicy  = FilePolicy{Extensions: documentExtensions, MIMETypes: allowedMIMETypes}
	ReplacePolicy = FilePolicy{
		Extensions: append(append([]string{}, documentExtensions...), ".jpg", ".jpeg", ".png", ".mp4", ".avi", ".mov"),
		MIMETypes:  allowedMIMETypes,
	}
)

// Check accepts photos and videos unconditionally, documents without a
// declared name, and documents whose extension or content type is allowed.
func (p FilePolicy) Check(f File) error {
	if f.Kind == KindPhoto || f.Kind == KindVideo {
		return nil
	}
	name := strings.TrimSpace(f.Name)
	if name == "" {
		return nil
	}
	ext := strings.ToLower(path.Ext(name))
	for _, allowed := range p.Extensions {
		if ext == allowed {
			return nil
		}
	}
	mime := strings.ToLower(strings.TrimSpace(f.MIME))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	for _, allowed := range p.MIMETypes {
		if mime == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: file type of %q is not allowed", ErrValidation, name)
}

// NeedsName reports whether an upload must ask the user for a file name.
func NeedsName(kind FileKind) bool {
	return kind == KindPhoto || kind == KindVideo
}

// UploadName is the stored name of a document received during upload.
func UploadName(f File) string {
	if name := strings.TrimSpace(f.Name); name != "" {
		return name
	}
	return unnamedUploadName
}

// MediaName turns a user-typed name into a stored photo or video name.
func MediaName(kind FileKind, typed string) (string, error) {
	name := strings.TrimSpace(typed)
	if name == "" {
		return "", fmt.Errorf("%w: file name is empty", ErrValidation)
	}
	ext := photoExt
	if kind == KindVideo {
		ext = videoExt
	}
	if strings.HasSuffix(strings.ToLower(name), ext) {
		return name, nil
	}
	return name + ext, nil
}

// ReplaceName names a replacement file. Photos and unnamed attachments get a
// generated name built from token.
func ReplaceName(f File, token string) string {
	name := strings.TrimSpace(f.Name)
	switch f.Kind {
	case KindPhoto:
		return "photo_" + token + photoExt
	case KindVideo:
		if name != "" {
			return name
		}
		return "video_" + token + videoExt
	default:
		if name != "" {
			return name
		}
		return "document_" + token + ".dat"
	}
}

// DeliveryKind picks how a stored file is sent back, based on its name.
func DeliveryKind(fileName string) FileKind {
	switch strings.ToLower(path.Ext(fileName)) {
	case ".jpg", ".jpeg", ".png":
		return KindPhoto
	case ".mp4", ".avi", ".mov":
		return KindVideo
	default:
		return KindDocument
	}
}
