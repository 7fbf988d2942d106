// Package images implements the single-image selection control: it accepts one
// raster image, keeps a revocable local preview reference for it, and hands the
// raw file to the caller. Uploading is left to the caller.
package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// MaxFileBytes bounds a single selected image.
const MaxFileBytes = 10 << 20

var (
	// ErrNoFile indicates that a drop carried no files.
	ErrNoFile = errors.New("images: no file selected")
	// ErrTooManyFiles indicates that more than one file was offered.
	ErrTooManyFiles = errors.New("images: exactly one file may be selected")
	// ErrUnsupportedType indicates that the file is not an accepted raster image.
	ErrUnsupportedType = errors.New("images: unsupported image type")
	// ErrFileTooLarge indicates that the file exceeds MaxFileBytes.
	ErrFileTooLarge = errors.New("images: file too large")
	// ErrSelectorClosed indicates use of a selector after Close.
	ErrSelectorClosed = errors.New("images: selector closed")
)

var acceptedTypes = map[string][]string{
	"image/jpeg": {".jpeg", ".jpg"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
}

// File is a selected image ready to be uploaded.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes.
func (f File) Size() int {
	return len(f.Data)
}

// Input is one candidate offered by a drop or picker.
type Input struct {
	Name   string
	Reader io.Reader
}

// SelectorConfig configures a Selector.
type SelectorConfig struct {
	Registry   *Registry
	InitialURL string
	Logger     *zap.Logger
}

// Selector holds at most one selected image and its preview reference.
type Selector struct {
	mu         sync.Mutex
	registry   *Registry
	initialURL string
	logger     *zap.Logger
	file       *File
	preview    *Preview
	closed     bool
}

// NewSelector constructs a selector. InitialURL seeds the preview with an existing remote image.
func NewSelector(cfg SelectorConfig) *Selector {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		registry:   registry,
		initialURL: strings.TrimSpace(cfg.InitialURL),
		logger:     logger,
	}
}

// Drop accepts the files of a drag-and-drop gesture. Exactly one file is allowed.
func (s *Selector) Drop(inputs []Input) (*Preview, error) {
	switch len(inputs) {
	case 0:
		return nil, ErrNoFile
	case 1:
		return s.Select(inputs[0].Name, inputs[0].Reader)
	default:
		return nil, fmt.Errorf("%w: got %d", ErrTooManyFiles, len(inputs))
	}
}

// Select reads a manually chosen file, replacing and revoking any previous selection.
func (s *Selector) Select(name string, reader io.Reader) (*Preview, error) {
	file, err := readImage(name, reader)
	if err != nil {
		s.logger.Debug("image rejected", zap.String("name", name), zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSelectorClosed
	}
	preview, err := s.registry.create(file)
	if err != nil {
		return nil, err
	}
	if s.preview != nil {
		s.registry.Revoke(s.preview.Reference)
	}
	s.file = &file
	s.preview = preview
	s.logger.Debug("image selected",
		zap.String("name", file.Name),
		zap.String("content_type", file.ContentType),
		zap.String("size", humanize.Bytes(uint64(file.Size()))))
	return preview, nil
}

// File returns the selected image, or nil when none is selected.
func (s *Selector) File() *File {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	file := *s.file
	return &file
}

// PreviewURL returns the live preview reference, falling back to the initial remote URL.
func (s *Selector) PreviewURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview != nil {
		return s.preview.Reference
	}
	return s.initialURL
}

// Clear drops the selection and revokes its preview.
func (s *Selector) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
}

// Close releases the preview; the selector rejects further selections.
func (s *Selector) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.closed = true
}

func (s *Selector) releaseLocked() {
	if s.preview != nil {
		s.registry.Revoke(s.preview.Reference)
	}
	s.preview = nil
	s.file = nil
}

// Read validates one candidate the same way Select does, without keeping a preview.
func Read(name string, reader io.Reader) (File, error) {
	return readImage(name, reader)
}

func readImage(name string, reader io.Reader) (File, error) {
	if reader == nil {
		return File{}, ErrNoFile
	}
	data, err := io.ReadAll(io.LimitReader(reader, MaxFileBytes+1))
	if err != nil {
		return File{}, fmt.Errorf("images: read %s: %w", name, err)
	}
	if len(data) == 0 {
		return File{}, fmt.Errorf("%w: %s is empty", ErrUnsupportedType, name)
	}
	if len(data) > MaxFileBytes {
		return File{}, fmt.Errorf("%w: limit is %s", ErrFileTooLarge, humanize.Bytes(MaxFileBytes))
	}

	detected := mimetype.Detect(data)
	var contentType string
	for accepted, extensions := range acceptedTypes {
		if detected.Is(accepted) {
			contentType = accepted
			if !hasExtension(name, extensions) {
				return File{}, fmt.Errorf("%w: %s does not match %s", ErrUnsupportedType, filepath.Ext(name), accepted)
			}
			break
		}
	}
	if contentType == "" {
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedType, detected.String())
	}

	return File{Name: filepath.Base(name), ContentType: contentType, Data: data}, nil
}

func hasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, candidate := range extensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

func decodeBounds(data []byte) (int, int) {
	config, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return config.Width, config.Height
}
